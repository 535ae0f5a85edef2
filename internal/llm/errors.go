package llm

import (
	"errors"
	"fmt"
)

// Generation failure kinds. All three are recoverable: the engine retries
// them with backoff before escalating the session.
var (
	ErrTimeout         = errors.New("generation timed out")
	ErrRateLimited     = errors.New("generation rate limited")
	ErrInvalidResponse = errors.New("invalid generation response")
)

// GenerationError wraps a failed generation call with its kind sentinel so
// callers can branch with errors.Is while keeping the provider detail.
type GenerationError struct {
	Kind   error
	Detail string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
}

func (e *GenerationError) Unwrap() error { return e.Kind }

func timeoutErr(detail string) error {
	return &GenerationError{Kind: ErrTimeout, Detail: detail}
}

func rateLimitedErr(detail string) error {
	return &GenerationError{Kind: ErrRateLimited, Detail: detail}
}

func invalidResponseErr(detail string) error {
	return &GenerationError{Kind: ErrInvalidResponse, Detail: detail}
}

// Recoverable reports whether err is a retryable generation failure.
func Recoverable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrInvalidResponse)
}
