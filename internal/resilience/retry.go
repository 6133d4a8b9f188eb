package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/quibble-sh/quibble/internal/common"
)

// ProviderError classifies an outbound call failure. Transient failures
// (timeouts, provider rate-limit responses, 5xx-equivalents) are worth
// retrying; permanent failures (validation, 4xx-equivalents) are not.
type ProviderError struct {
	Err       error
	Transient bool
}

func (e *ProviderError) Error() string {
	return e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable provider failure.
func Transient(err error) error {
	return &ProviderError{Err: err, Transient: true}
}

// Permanent wraps err as a non-retryable provider failure.
func Permanent(err error) error {
	return &ProviderError{Err: err, Transient: false}
}

// IsTransient reports whether err should trigger a retry. Unclassified
// errors default to transient, matching how network hiccups usually present;
// cancellations and this package's own admission failures never retry.
func IsTransient(err error) bool {
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, common.ErrRateLimited) ||
		errors.Is(err, common.ErrCircuitOpen) {
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Transient
	}

	return true
}

// RetryOptions configures retry behavior for outbound calls.
type RetryOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryOptions returns the design-default retry policy.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
	}
}

// WithRetry executes operation with bounded exponential backoff. Attempt n
// waits base*2^(n-1) plus jitter before the next try. Exhausting every
// attempt surfaces the last transient failure wrapped in ErrRetriesExhausted
// rather than silently degrading.
func WithRetry(ctx context.Context, operation func(context.Context) error, opts RetryOptions) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}

	delay := opts.BaseDelay

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		err := operation(ctx)
		if err == nil {
			return nil
		}

		if !IsTransient(err) {
			return err
		}

		if attempt == opts.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %v", common.ErrRetriesExhausted, opts.MaxAttempts, err)
		}

		wait := delay + jitter(opts.BaseDelay)
		slog.Warn("operation failed, retrying",
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"delay", wait,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay *= 2
		if delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}

	return common.ErrRetriesExhausted
}

// jitter returns a random delay in [0, base/2) to spread out retry storms.
func jitter(base time.Duration) time.Duration {
	if base <= 1 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(base / 2)))
}
