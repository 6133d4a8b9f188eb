package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/quibble-sh/quibble/internal/common"
)

// Options configures the protection applied to one provider.
type Options struct {
	Retry            RetryOptions
	RequestsPerMin   int
	MaxAdmissionWait time.Duration
	FailureThreshold int
	OpenDuration     time.Duration
}

// DefaultOptions returns the design-default provider protection.
func DefaultOptions() Options {
	return Options{
		RequestsPerMin:   60,
		MaxAdmissionWait: 10 * time.Second,
		FailureThreshold: 5,
		OpenDuration:     60 * time.Second,
		Retry:            DefaultRetryOptions(),
	}
}

// provider bundles the shared state protecting one external dependency.
type provider struct {
	bucket  *TokenBucket
	breaker *CircuitBreaker
	retry   RetryOptions
}

// Executor wraps every outbound call to an external provider with the full
// protection stack: circuit breaker gate, then per-attempt token-bucket
// admission, then bounded retry. One Executor serves the whole process;
// provider state is created lazily and shared by all concurrent sessions.
type Executor struct {
	providers map[string]*provider
	defaults  Options
	logger    *slog.Logger
	mu        sync.Mutex
}

// NewExecutor creates an executor applying defaults to any provider that was
// not explicitly configured.
func NewExecutor(defaults Options, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		providers: make(map[string]*provider),
		defaults:  defaults,
		logger:    logger,
	}
}

// Configure sets provider-specific protection, replacing any existing state.
func (e *Executor) Configure(providerID string, opts Options) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.providers[providerID] = newProvider(opts, e.logger)
}

// Execute runs one logical outbound call under the provider's protection.
// A breaker rejection is terminal for the call: it consumes no retry attempt
// and no token. The breaker sees one verdict per logical call, so a
// half-open trial spans the whole attempt sequence.
func (e *Executor) Execute(ctx context.Context, providerID string, call func(context.Context) error) error {
	p := e.provider(providerID)

	if err := p.breaker.Allow(); err != nil {
		e.logger.Warn("call rejected by circuit breaker", "provider", providerID)
		return err
	}

	err := WithRetry(ctx, func(ctx context.Context) error {
		if acquireErr := p.bucket.Acquire(ctx); acquireErr != nil {
			return acquireErr
		}
		return call(ctx)
	}, p.retry)

	switch {
	case err == nil:
		p.breaker.RecordSuccess()
	case errors.Is(err, context.Canceled):
		// The owning session was torn down mid-call. Consumed tokens are
		// not refunded and the provider is not blamed.
		p.breaker.RecordAbandoned()
	case errors.Is(err, common.ErrRateLimited):
		// Local admission failure; the provider never saw the call.
		p.breaker.RecordAbandoned()
	default:
		p.breaker.RecordFailure()
	}

	return err
}

// Breaker exposes the provider's circuit breaker, mainly for health checks.
func (e *Executor) Breaker(providerID string) *CircuitBreaker {
	return e.provider(providerID).breaker
}

func (e *Executor) provider(providerID string) *provider {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.providers[providerID]
	if !ok {
		p = newProvider(e.defaults, e.logger)
		e.providers[providerID] = p
	}
	return p
}

func newProvider(opts Options, logger *slog.Logger) *provider {
	return &provider{
		bucket:  NewTokenBucket(opts.RequestsPerMin, opts.MaxAdmissionWait),
		breaker: NewCircuitBreaker(opts.FailureThreshold, opts.OpenDuration, logger),
		retry:   opts.Retry,
	}
}
