package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quibble-sh/quibble/internal/common"
)

func fastRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
	}{
		{"classified transient", Transient(errors.New("timeout")), true},
		{"classified permanent", Permanent(errors.New("bad request")), false},
		{"wrapped transient", Transient(errors.New("boom")), true},
		{"context canceled", context.Canceled, false},
		{"rate limited", common.ErrRateLimited, false},
		{"circuit open", common.ErrCircuitOpen, false},
		{"unclassified defaults to transient", errors.New("connection reset"), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.transient, IsTransient(tc.err))
		})
	}
}

func TestWithRetry(t *testing.T) {
	t.Run("succeeds without retrying", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func(context.Context) error {
			calls++
			return nil
		}, fastRetryOptions())
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries transient failures until success", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func(context.Context) error {
			calls++
			if calls < 3 {
				return Transient(errors.New("flaky"))
			}
			return nil
		}, fastRetryOptions())
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent failure returns immediately", func(t *testing.T) {
		calls := 0
		permanent := Permanent(errors.New("invalid API key"))
		err := WithRetry(context.Background(), func(context.Context) error {
			calls++
			return permanent
		}, fastRetryOptions())
		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.NotErrorIs(t, err, common.ErrRetriesExhausted)
	})

	t.Run("rate-limit admission failure is not retried", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func(context.Context) error {
			calls++
			return common.ErrRateLimited
		}, fastRetryOptions())
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrRateLimited)
		assert.Equal(t, 1, calls)
	})

	t.Run("exhaustion wraps the sentinel and the last error", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func(context.Context) error {
			calls++
			return Transient(errors.New("still down"))
		}, fastRetryOptions())
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrRetriesExhausted)
		assert.Contains(t, err.Error(), "still down")
		assert.Equal(t, 3, calls)
	})

	t.Run("cancellation during backoff stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		opts := RetryOptions{MaxAttempts: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}

		err := WithRetry(ctx, func(context.Context) error {
			calls++
			cancel()
			return Transient(errors.New("flaky"))
		}, opts)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}
