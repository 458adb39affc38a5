package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"care-companion/internal/config"
	"care-companion/internal/domain"
	"care-companion/internal/integrations/ollama"
	"care-companion/internal/integrations/openai"
)

// Backend is an inference engine that serves named models.
type Backend interface {
	Generate(ctx context.Context, model, prompt string, params domain.GenerationParams) (string, error)
	Available(ctx context.Context, model string) error
}

type constructor func(cfg config.ModelConfig, keys openai.KeySource) (Backend, error)

var constructors = map[string]constructor{
	config.BackendOllama: func(cfg config.ModelConfig, _ openai.KeySource) (Backend, error) {
		return ollama.NewClient(
			ollama.WithBaseURL(cfg.BaseURL),
			ollama.WithHTTPClient(httpClient(cfg)),
		), nil
	},
	config.BackendOpenAI: func(cfg config.ModelConfig, keys openai.KeySource) (Backend, error) {
		opts := []openai.Option{openai.WithHTTPClient(httpClient(cfg))}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.NewClient(keys, opts...)
	},
	config.BackendMock: func(config.ModelConfig, openai.KeySource) (Backend, error) {
		return Mock{}, nil
	},
}

// NewBackend builds the backend named by cfg.Backend. keys is only used by
// the openai backend.
func NewBackend(cfg config.ModelConfig, keys openai.KeySource) (Backend, error) {
	ctor, ok := constructors[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("model: unknown backend %q", cfg.Backend)
	}
	if cfg.Backend == config.BackendOpenAI && keys == nil {
		return nil, errors.New("model: openai backend requires a key source")
	}
	b, err := ctor(cfg, keys)
	if err != nil {
		return nil, fmt.Errorf("model: create %s backend: %w", cfg.Backend, err)
	}
	return b, nil
}

func httpClient(cfg config.ModelConfig) *http.Client {
	if cfg.Timeout <= 0 {
		return nil
	}
	return &http.Client{Timeout: cfg.Timeout}
}

// MockReply is what the mock backend answers to every prompt.
const MockReply = "This is a mock response. Rest, stay hydrated and monitor your symptoms."

// Mock serves every model name and answers with MockReply. It is used for
// local development without an inference engine.
type Mock struct{}

func (Mock) Generate(ctx context.Context, _, _ string, _ domain.GenerationParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return MockReply, nil
}

func (Mock) Available(context.Context, string) error { return nil }
