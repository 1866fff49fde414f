package resilience

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialerd/internal/faults"
	"github.com/fyrsmithlabs/dialerd/internal/logging"
)

// Operation is any outbound call to an external service.
type Operation func(ctx context.Context) error

// RetryPredicate decides whether an error may be retried.
type RetryPredicate func(error) bool

// Executor runs operations under per-category retry policies.
type Executor struct {
	logger  *logging.Logger
	metrics *Metrics
	retryIf RetryPredicate

	// mu guards policies: config hot-reload swaps the table while webhook
	// goroutines read it.
	mu       sync.RWMutex
	policies map[string]Policy

	// sleep is swapped in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithRetryPredicate overrides the default retryability check.
func WithRetryPredicate(p RetryPredicate) ExecutorOption {
	return func(e *Executor) { e.retryIf = p }
}

// WithMetrics attaches executor metrics.
func WithMetrics(m *Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// withSleep replaces the backoff sleeper. Test hook.
func withSleep(fn func(ctx context.Context, d time.Duration) error) ExecutorOption {
	return func(e *Executor) { e.sleep = fn }
}

// NewExecutor creates an executor with the given per-category policies.
func NewExecutor(policies map[string]Policy, logger *logging.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = logging.Nop()
	}
	e := &Executor{
		policies: policies,
		logger:   logger.Named("retry"),
		retryIf:  faults.Retryable,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetPolicies atomically replaces the policy table. Used by config
// hot-reload; in-flight retry sequences keep the policy they started with.
func (e *Executor) SetPolicies(policies map[string]Policy) {
	e.mu.Lock()
	e.policies = policies
	e.mu.Unlock()
}

// Policy returns the policy for a category, falling back to the default.
func (e *Executor) Policy(category string) Policy {
	e.mu.RLock()
	p, ok := e.policies[category]
	e.mu.RUnlock()
	if ok {
		return p
	}
	return DefaultPolicy()
}

// Do runs op under the category's retry policy.
//
// Each attempt races against the policy timeout. Failed attempts back off
// per the policy strategy; non-retryable errors propagate immediately
// without consuming retry budget. After the final attempt fails the
// original error is returned wrapped in an *AttemptError.
func (e *Executor) Do(ctx context.Context, category string, op Operation) error {
	policy := e.Policy(category)
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxRetries; attempt++ {
		err := e.runAttempt(ctx, policy, op)
		if err == nil {
			if attempt > 1 {
				e.logger.Info(ctx, "operation recovered after retries",
					zap.String("category", category),
					zap.Int("attempts", attempt),
					zap.Duration("elapsed", time.Since(start)),
				)
				if e.metrics != nil {
					e.metrics.recordRecovery(ctx, category, attempt)
				}
			}
			return nil
		}
		lastErr = err

		if !e.retryIf(err) {
			e.logger.Debug(ctx, "error is not retryable",
				zap.String("category", category),
				zap.Error(err),
			)
			return err
		}

		if e.metrics != nil {
			e.metrics.recordRetry(ctx, category)
		}

		if attempt == policy.MaxRetries {
			break
		}

		delay := policy.Delay(attempt)
		e.logger.Warn(ctx, "retrying after transient failure",
			zap.String("category", category),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", policy.MaxRetries),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}

	final := &AttemptError{
		Category: category,
		Attempts: policy.MaxRetries,
		Elapsed:  time.Since(start),
		Err:      lastErr,
	}
	e.logger.Error(ctx, "operation failed after all retries exhausted",
		zap.String("category", category),
		zap.Int("attempts", final.Attempts),
		zap.Duration("elapsed", final.Elapsed),
		zap.Error(lastErr),
	)
	if e.metrics != nil {
		e.metrics.recordExhaustion(ctx, category)
	}
	return final
}

// runAttempt executes one attempt under the per-attempt timeout.
//
// The operation runs in its own goroutine and races a timer; an operation
// that ignores context cancellation keeps running in the background, but
// the attempt is charged as failed.
func (e *Executor) runAttempt(ctx context.Context, policy Policy, op Operation) error {
	if policy.Timeout <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, policy.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(attemptCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrAttemptTimeout
	}
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
