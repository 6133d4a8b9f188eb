// Package common provides shared utilities and error kinds used across the application.
package common

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the matching and resilience layers. Callers are
// expected to branch on these with errors.Is so that "busy, try again",
// "service down" and "bad input" never collapse into one generic failure.
var (
	// Matching-domain conditions.
	ErrInvalidQuery   = errors.New("invalid query")
	ErrNotFound       = errors.New("not found")
	ErrStaleReference = errors.New("stale disambiguation reference")

	// Resilience-domain failures.
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrCircuitOpen      = errors.New("circuit breaker is open")
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}
