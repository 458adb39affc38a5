package usecase

import "fmt"

type ErrorCode string

const (
	ErrorValidation       ErrorCode = "VALIDATION_ERROR"
	ErrorModelUnavailable ErrorCode = "MODEL_UNAVAILABLE"
	ErrorGeneration       ErrorCode = "GENERATION_ERROR"
	ErrorInternal         ErrorCode = "INTERNAL_ERROR"
)

// User-facing messages. Transport layers return these verbatim.
const (
	MessageFieldRequired  = "Message field is required"
	MessageMustBeString   = "Message must be a string"
	MessageCannotBeEmpty  = "Message cannot be empty"
	MessageModelNotLoaded = "Model is not loaded. Please check the server logs."
	MessageGenerateFailed = "Failed to generate AI response."
	MessageInternal       = "Internal server error"
)

// Error is the typed failure returned by ChatService. Reason is a stable
// snake_case tag for logs; Message is safe to show to callers.
type Error struct {
	Code    ErrorCode
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason, message string, err error) *Error {
	return &Error{Code: code, Reason: reason, Message: message, Err: err}
}

// NewValidationError is used by transports that reject a request before it
// reaches the service, e.g. a body without a message field.
func NewValidationError(reason, message string) *Error {
	return newError(ErrorValidation, reason, message, nil)
}
