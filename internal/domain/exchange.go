package domain

import "time"

const (
	ExchangeComplete = "complete"
	ExchangeFailed   = "failed"
)

// Exchange is a single persisted request/reply pair. Exchanges are never
// read back into a prompt.
type Exchange struct {
	ID            string
	CorrelationID string
	Message       string
	Reply         string
	Model         string
	Status        string
	ErrorCode     string
	LatencyMillis int64
	CreatedAt     time.Time
	TTL           int64
}
