package resilience

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialerd/internal/logging"
)

// CircuitBreaker fails fast once an external service has failed enough
// consecutive times. States: closed (normal), open (reject immediately),
// and an implicit half-open where a single call after the reset timeout
// is let through as a trial.
type CircuitBreaker struct {
	name         string
	threshold    int
	resetTimeout time.Duration
	logger       *logging.Logger
	metrics      *Metrics

	// now is swapped in tests.
	now func() time.Time

	mu           sync.Mutex
	failureCount int
	open         bool
	probing      bool
	lastFailure  time.Time
}

// NewCircuitBreaker creates a breaker for the named service.
func NewCircuitBreaker(name string, threshold int, resetTimeout time.Duration, logger *logging.Logger) *CircuitBreaker {
	if logger == nil {
		logger = logging.Nop()
	}
	return &CircuitBreaker{
		name:         name,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		logger:       logger.Named("breaker"),
		now:          time.Now,
	}
}

// Do runs op through the breaker. While open, calls are rejected with
// ErrCircuitOpen until the reset timeout elapses; a single call after
// that is allowed through as a trial.
func (cb *CircuitBreaker) Do(ctx context.Context, op Operation) error {
	if !cb.allow() {
		if cb.metrics != nil {
			cb.metrics.recordBreakerRejection(ctx, cb.name)
		}
		return ErrCircuitOpen
	}

	err := op(ctx)
	if err != nil {
		cb.recordFailure(ctx)
		return err
	}
	cb.recordSuccess(ctx)
	return nil
}

// allow reports whether a call may proceed, transitioning to half-open
// when the reset timeout has elapsed. While half-open exactly one trial
// call is in flight; concurrent callers are rejected until it resolves.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.open {
		return true
	}
	if cb.probing || cb.now().Sub(cb.lastFailure) <= cb.resetTimeout {
		return false
	}
	cb.probing = true
	return true
}

func (cb *CircuitBreaker) recordFailure(ctx context.Context) {
	cb.mu.Lock()
	wasOpen := cb.open
	cb.probing = false
	cb.failureCount++
	cb.lastFailure = cb.now()
	if cb.failureCount >= cb.threshold {
		cb.open = true
	}
	opened := cb.open && !wasOpen
	reopened := cb.open && wasOpen
	cb.mu.Unlock()

	if opened {
		cb.logger.Error(ctx, "circuit breaker opened",
			zap.String("service", cb.name),
			zap.Int("failures", cb.threshold),
		)
		if cb.metrics != nil {
			cb.metrics.recordBreakerOpen(ctx, cb.name)
		}
	} else if reopened {
		cb.logger.Warn(ctx, "trial call failed, circuit breaker re-opened",
			zap.String("service", cb.name),
		)
	}
}

func (cb *CircuitBreaker) recordSuccess(ctx context.Context) {
	cb.mu.Lock()
	wasOpen := cb.open
	cb.probing = false
	cb.failureCount = 0
	cb.open = false
	cb.mu.Unlock()

	if wasOpen {
		cb.logger.Info(ctx, "circuit breaker closed after successful trial",
			zap.String("service", cb.name),
		)
	}
}

// State returns the breaker's current state for introspection.
func (cb *CircuitBreaker) State() (failureCount int, open bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount, cb.open
}

// Breakers is a per-service breaker table. Breakers are created lazily
// and live for the life of the process.
type Breakers struct {
	threshold    int
	resetTimeout time.Duration
	logger       *logging.Logger
	metrics      *Metrics

	mu    sync.Mutex
	table map[string]*CircuitBreaker
}

// NewBreakers creates a breaker table with shared settings.
func NewBreakers(threshold int, resetTimeout time.Duration, logger *logging.Logger, metrics *Metrics) *Breakers {
	return &Breakers{
		threshold:    threshold,
		resetTimeout: resetTimeout,
		logger:       logger,
		metrics:      metrics,
		table:        make(map[string]*CircuitBreaker),
	}
}

// For returns the breaker for serviceName, creating it on first use.
func (b *Breakers) For(serviceName string) *CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.table[serviceName]
	if !ok {
		cb = NewCircuitBreaker(serviceName, b.threshold, b.resetTimeout, b.logger)
		cb.metrics = b.metrics
		b.table[serviceName] = cb
	}
	return cb
}
