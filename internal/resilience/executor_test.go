package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/dialerd/internal/faults"
	"github.com/fyrsmithlabs/dialerd/internal/logging"
)

func newTestExecutor(t *testing.T, policies map[string]Policy) (*Executor, *logging.TestLogger, *[]time.Duration) {
	t.Helper()
	tl := logging.NewTestLogger()
	var slept []time.Duration
	exec := NewExecutor(policies, tl.Logger, withSleep(func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}))
	return exec, tl, &slept
}

func TestExecutor_SucceedsFirstAttempt(t *testing.T) {
	exec, tl, slept := newTestExecutor(t, map[string]Policy{
		"dialer": {MaxRetries: 3, BaseDelay: time.Second, Strategy: StrategyExponential},
	})

	calls := 0
	err := exec.Do(context.Background(), "dialer", func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
	tl.AssertNotLogged(t, zapcore.InfoLevel, "recovered")
}

func TestExecutor_RecoversAfterFailures(t *testing.T) {
	exec, tl, slept := newTestExecutor(t, map[string]Policy{
		"dialer": {MaxRetries: 3, BaseDelay: time.Second, Strategy: StrategyExponential},
	})

	calls := 0
	err := exec.Do(context.Background(), "dialer", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	// Backoff after attempt 1 (1s) and attempt 2 (2s).
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
	tl.AssertLogged(t, zapcore.InfoLevel, "recovered after retries")
}

func TestExecutor_ExhaustsRetryBudget(t *testing.T) {
	exec, _, slept := newTestExecutor(t, map[string]Policy{
		"dialer": {MaxRetries: 3, BaseDelay: 100 * time.Millisecond, Strategy: StrategyFixed},
	})

	calls := 0
	original := errors.New("still down")
	err := exec.Do(context.Background(), "dialer", func(ctx context.Context) error {
		calls++
		return original
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, *slept, 2) // no sleep after the final attempt

	var attemptErr *AttemptError
	require.ErrorAs(t, err, &attemptErr)
	assert.Equal(t, 3, attemptErr.Attempts)
	assert.Equal(t, "dialer", attemptErr.Category)
	require.ErrorIs(t, err, original)
}

func TestExecutor_NonRetryableFailsFast(t *testing.T) {
	exec, _, slept := newTestExecutor(t, map[string]Policy{
		"crm": {MaxRetries: 5, BaseDelay: time.Second, Strategy: StrategyLinear},
	})

	calls := 0
	bad := faults.New(faults.KindValidation, faults.SourceCRM, "update lead", errors.New("bad lead id"))
	err := exec.Do(context.Background(), "crm", func(ctx context.Context) error {
		calls++
		return bad
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
	var attemptErr *AttemptError
	assert.False(t, errors.As(err, &attemptErr), "non-retryable errors must not be wrapped as exhaustion")
}

func TestExecutor_UnknownCategoryUsesDefaultPolicy(t *testing.T) {
	exec, _, _ := newTestExecutor(t, nil)
	p := exec.Policy("unknown")
	assert.Equal(t, DefaultPolicy(), p)
}

func TestExecutor_AttemptTimeout(t *testing.T) {
	tl := logging.NewTestLogger()
	exec := NewExecutor(map[string]Policy{
		"slow": {MaxRetries: 1, BaseDelay: time.Millisecond, Strategy: StrategyFixed, Timeout: 20 * time.Millisecond},
	}, tl.Logger)

	err := exec.Do(context.Background(), "slow", func(ctx context.Context) error {
		select {
		case <-time.After(5 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	require.Error(t, err)
	require.ErrorIs(t, err, ErrAttemptTimeout)
}

func TestExecutor_ContextCancelStopsBackoff(t *testing.T) {
	tl := logging.NewTestLogger()
	exec := NewExecutor(map[string]Policy{
		"dialer": {MaxRetries: 5, BaseDelay: 10 * time.Second, Strategy: StrategyFixed},
	}, tl.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := exec.Do(ctx, "dialer", func(ctx context.Context) error {
		calls++
		return errors.New("down")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestExecutor_SetPoliciesConcurrentWithDo(t *testing.T) {
	exec, _, _ := newTestExecutor(t, map[string]Policy{
		"dialer": {MaxRetries: 1, BaseDelay: 0, Strategy: StrategyFixed},
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				exec.SetPolicies(map[string]Policy{
					"dialer": {MaxRetries: 2, BaseDelay: 0, Strategy: StrategyFixed},
				})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = exec.Do(context.Background(), "dialer", func(ctx context.Context) error { return nil })
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, exec.Policy("dialer").MaxRetries)
}

func TestExecutor_SetPolicies(t *testing.T) {
	exec, _, _ := newTestExecutor(t, map[string]Policy{
		"dialer": {MaxRetries: 3, BaseDelay: time.Second, Strategy: StrategyExponential},
	})
	exec.SetPolicies(map[string]Policy{
		"dialer": {MaxRetries: 7, BaseDelay: time.Second, Strategy: StrategyFixed},
	})
	assert.Equal(t, 7, exec.Policy("dialer").MaxRetries)
}
