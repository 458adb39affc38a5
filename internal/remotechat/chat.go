// Package remotechat answers prompts through a remote inference daemon and
// never returns an error: failures become diagnostic strings so an
// interactive loop keeps running.
package remotechat

import (
	"context"
	"errors"
	"strings"

	"care-companion/internal/domain"
	"care-companion/internal/integrations/ollama"
)

const (
	connectErrorPrefix = "Error connecting to the AI model: "
	DecodeErrorReply   = "Error: Could not decode the response from the AI model."
	EmptyReply         = "Sorry, I couldn't generate a response."
)

type Generator interface {
	Generate(ctx context.Context, model, prompt string, params domain.GenerationParams) (string, error)
}

type Chatter struct {
	gen   Generator
	model string
}

func New(gen Generator, model string) (*Chatter, error) {
	if gen == nil {
		return nil, errors.New("remotechat: generator must not be nil")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = ollama.DefaultModel
	}
	return &Chatter{gen: gen, model: model}, nil
}

// Reply sends the prompt as-is with the daemon's default options.
func (c *Chatter) Reply(ctx context.Context, prompt string) string {
	out, err := c.gen.Generate(ctx, c.model, prompt, domain.GenerationParams{})
	switch {
	case errors.Is(err, ollama.ErrMalformedResponse):
		return DecodeErrorReply
	case err != nil:
		return connectErrorPrefix + err.Error()
	case out == "":
		return EmptyReply
	}
	return out
}
