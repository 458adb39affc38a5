package domain

// ChatMessage is the provider-agnostic chat message shape sent to
// OpenAI-compatible completion endpoints.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams controls decoding on the inference backend.
type GenerationParams struct {
	MaxNewTokens      int
	Temperature       float64
	TopP              float64
	RepetitionPenalty float64
}
