package resilience

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quibble-sh/quibble/internal/common"
)

// BreakerState is the circuit breaker's position.
type BreakerState string

// Breaker states.
const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// CircuitBreaker tracks consecutive failures against one provider and fails
// fast during sustained outages. It is shared by all concurrent requests to
// that provider; every transition happens under one mutex so two concurrent
// failure reports can never race past the threshold check.
type CircuitBreaker struct {
	openedAt            time.Time
	logger              *slog.Logger
	state               BreakerState
	failureThreshold    int
	consecutiveFailures int
	openDuration        time.Duration
	trialInFlight       bool
	mu                  sync.Mutex
}

// NewCircuitBreaker creates a closed breaker that opens after
// failureThreshold consecutive failures and re-probes after openDuration.
func NewCircuitBreaker(failureThreshold int, openDuration time.Duration, logger *slog.Logger) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if openDuration <= 0 {
		openDuration = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &CircuitBreaker{
		state:            BreakerClosed,
		failureThreshold: failureThreshold,
		openDuration:     openDuration,
		logger:           logger,
	}
}

// Allow reports whether a call may proceed. While open, calls are rejected
// with ErrCircuitOpen until the open duration elapses, at which point
// exactly one caller is admitted as the half-open trial; everyone else keeps
// getting ErrCircuitOpen until that trial reports back.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		return nil

	case BreakerOpen:
		if time.Since(cb.openedAt) < cb.openDuration {
			return fmt.Errorf("%w: retry after %s", common.ErrCircuitOpen, cb.openDuration-time.Since(cb.openedAt))
		}
		cb.state = BreakerHalfOpen
		cb.trialInFlight = true
		cb.logger.Info("circuit breaker admitting trial call", "state", cb.state)
		return nil

	default: // half open
		if cb.trialInFlight {
			return fmt.Errorf("%w: trial call in flight", common.ErrCircuitOpen)
		}
		cb.trialInFlight = true
		return nil
	}
}

// RecordSuccess notes a successful call. Any success closes the circuit and
// resets the consecutive failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != BreakerClosed {
		cb.logger.Info("circuit breaker closed", "previous_state", cb.state)
	}
	cb.state = BreakerClosed
	cb.consecutiveFailures = 0
	cb.trialInFlight = false
}

// RecordFailure notes a failed call. Reaching the threshold, or any failure
// of a half-open trial, opens the circuit and restarts its timer.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++

	switch cb.state {
	case BreakerHalfOpen:
		cb.state = BreakerOpen
		cb.openedAt = time.Now()
		cb.trialInFlight = false
		cb.logger.Warn("circuit breaker re-opened from half-open")

	case BreakerClosed:
		if cb.consecutiveFailures >= cb.failureThreshold {
			cb.state = BreakerOpen
			cb.openedAt = time.Now()
			cb.logger.Warn("circuit breaker opened",
				"consecutive_failures", cb.consecutiveFailures)
		}

	case BreakerOpen:
		// Already open; nothing further to do.
	}
}

// RecordAbandoned notes a call that never completed (e.g. its session was
// torn down). It does not count as a failure and must not wedge a half-open
// trial slot.
func (cb *CircuitBreaker) RecordAbandoned() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.trialInFlight = false
}

// State returns the breaker's current position.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset manually closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = BreakerClosed
	cb.consecutiveFailures = 0
	cb.trialInFlight = false
}
