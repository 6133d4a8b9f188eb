// Package resilience protects outbound calls to external providers with
// token-bucket admission, a per-provider circuit breaker, and bounded
// exponential-backoff retry.
package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quibble-sh/quibble/internal/common"
)

// TokenBucket is a continuously refilling token bucket shared by every
// concurrent caller targeting one provider. All state is mutated inside a
// single critical section whose hold time is O(1) arithmetic; the bucket is
// never held for the duration of an outbound call.
type TokenBucket struct {
	lastRefill time.Time
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	maxWait    time.Duration
	mu         sync.Mutex
}

// NewTokenBucket creates a bucket admitting requestsPerMinute calls,
// refilled continuously rather than in discrete ticks. maxWait bounds how
// long an acquire may suspend before failing with ErrRateLimited.
func NewTokenBucket(requestsPerMinute int, maxWait time.Duration) *TokenBucket {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	if maxWait <= 0 {
		maxWait = 10 * time.Second
	}

	capacity := float64(requestsPerMinute)
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: capacity / 60.0,
		lastRefill: time.Now(),
		maxWait:    maxWait,
	}
}

// Acquire admits the caller if a token is available, otherwise suspends the
// caller (not the process) until one will be and retries the check once.
// A wait that would exceed the configured maximum fails with ErrRateLimited
// instead of blocking indefinitely.
func (b *TokenBucket) Acquire(ctx context.Context) error {
	wait, ok := b.take()
	if ok {
		return nil
	}
	if wait > b.maxWait {
		return fmt.Errorf("%w: token available in %s, exceeds max wait %s", common.ErrRateLimited, wait.Round(time.Millisecond), b.maxWait)
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter canceled: %w", ctx.Err())
	case <-timer.C:
	}

	if _, ok := b.take(); ok {
		return nil
	}
	return fmt.Errorf("%w: no token available after waiting %s", common.ErrRateLimited, wait.Round(time.Millisecond))
}

// TryAcquire admits the caller only if a token is immediately available.
func (b *TokenBucket) TryAcquire() bool {
	_, ok := b.take()
	return ok
}

// take refills from elapsed time and consumes one token if possible.
// On failure it returns the minimal wait until a token will be available.
func (b *TokenBucket) take() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return 0, true
	}

	deficit := 1 - b.tokens
	wait := time.Duration(deficit / b.refillRate * float64(time.Second))
	return wait, false
}
