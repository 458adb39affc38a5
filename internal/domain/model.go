package domain

import "time"

const (
	ModelSourceLocal    = "local"
	ModelSourceFallback = "fallback"
)

// ModelHandle identifies the model the inference backend serves for this
// process. It is set once at load time and never mutated.
type ModelHandle struct {
	Name     string
	Source   string
	LoadedAt time.Time
}
