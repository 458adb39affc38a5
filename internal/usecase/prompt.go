package usecase

import (
	"errors"
	"strings"
)

const (
	DefaultUserLabel         = "User:"
	DefaultCue               = "AI:"
	DefaultDisclaimerKeyword = "consult"
	DefaultDisclaimer        = "Disclaimer: This information is for educational purposes only. Always consult a qualified doctor."

	disclaimerSeparator = "\n\n"
)

// DefaultPreamble is the persona and safety instruction block placed ahead of
// every user message.
var DefaultPreamble = []string{
	"You are CareCompanion, a professional AI healthcare assistant.",
	"Provide accurate, concise, and safe advice.",
	"Always include a disclaimer reminding to consult a medical professional.",
}

// PromptTemplate turns a user message into a model prompt and a raw model
// output into a reply that always carries the consultation disclaimer.
// A PromptTemplate is immutable once built and safe for concurrent use.
type PromptTemplate struct {
	preamble   []string
	userLabel  string
	cue        string
	keyword    string
	disclaimer string
}

// TemplateConfig holds the configurable pieces of a PromptTemplate. Empty
// fields take the package defaults.
type TemplateConfig struct {
	Preamble          []string
	UserLabel         string
	Cue               string
	DisclaimerKeyword string
	Disclaimer        string
}

func NewPromptTemplate(cfg TemplateConfig) (*PromptTemplate, error) {
	t := &PromptTemplate{
		preamble:   DefaultPreamble,
		userLabel:  DefaultUserLabel,
		cue:        DefaultCue,
		keyword:    DefaultDisclaimerKeyword,
		disclaimer: DefaultDisclaimer,
	}
	if len(cfg.Preamble) > 0 {
		t.preamble = append([]string(nil), cfg.Preamble...)
	}
	if s := strings.TrimSpace(cfg.UserLabel); s != "" {
		t.userLabel = s
	}
	if s := strings.TrimSpace(cfg.Cue); s != "" {
		t.cue = s
	}
	if s := strings.TrimSpace(cfg.DisclaimerKeyword); s != "" {
		t.keyword = s
	}
	if s := strings.TrimSpace(cfg.Disclaimer); s != "" {
		t.disclaimer = s
	}
	// FinalizeReply can only guarantee the keyword if the disclaimer has it.
	if !containsFold(t.disclaimer, t.keyword) {
		return nil, errors.New("usecase: disclaimer must contain the disclaimer keyword")
	}
	return t, nil
}

// DefaultPromptTemplate returns the canonical template.
func DefaultPromptTemplate() *PromptTemplate {
	t, err := NewPromptTemplate(TemplateConfig{})
	if err != nil {
		panic(err)
	}
	return t
}

// BuildPrompt renders the preamble, the user message and the answer cue.
// The message is embedded verbatim; callers reject blank messages first.
func (t *PromptTemplate) BuildPrompt(userMessage string) string {
	var b strings.Builder
	for _, line := range t.preamble {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(t.userLabel)
	b.WriteByte(' ')
	b.WriteString(userMessage)
	b.WriteByte('\n')
	b.WriteString(t.cue)
	return b.String()
}

// FinalizeReply trims the model output and appends the disclaimer unless the
// keyword is already present. An empty output yields the disclaimer alone.
func (t *PromptTemplate) FinalizeReply(rawModelOutput string) string {
	reply := strings.TrimSpace(rawModelOutput)
	if containsFold(reply, t.keyword) {
		return reply
	}
	if reply == "" {
		return t.disclaimer
	}
	return reply + disclaimerSeparator + t.disclaimer
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
