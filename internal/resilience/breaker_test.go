package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/dialerd/internal/logging"
)

func failingOp(err error, calls *int) Operation {
	return func(ctx context.Context) error {
		*calls++
		return err
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	tl := logging.NewTestLogger()
	cb := NewCircuitBreaker("dialer", 5, 30*time.Second, tl.Logger)

	calls := 0
	down := errors.New("service down")
	for i := 0; i < 5; i++ {
		err := cb.Do(context.Background(), failingOp(down, &calls))
		require.ErrorIs(t, err, down)
	}
	assert.Equal(t, 5, calls)

	failures, open := cb.State()
	assert.Equal(t, 5, failures)
	assert.True(t, open)

	// Sixth call is rejected without attempting the operation.
	err := cb.Do(context.Background(), failingOp(down, &calls))
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 5, calls)
}

func TestBreaker_HalfOpenTrialSuccessCloses(t *testing.T) {
	tl := logging.NewTestLogger()
	cb := NewCircuitBreaker("dialer", 2, 30*time.Second, tl.Logger)

	now := time.Now()
	cb.now = func() time.Time { return now }

	calls := 0
	down := errors.New("down")
	for i := 0; i < 2; i++ {
		_ = cb.Do(context.Background(), failingOp(down, &calls))
	}
	_, open := cb.State()
	require.True(t, open)

	// Still within reset window: rejected.
	now = now.Add(29 * time.Second)
	err := cb.Do(context.Background(), failingOp(down, &calls))
	require.ErrorIs(t, err, ErrCircuitOpen)

	// Past the reset window: trial call allowed, success resets the breaker.
	now = now.Add(2 * time.Second)
	err = cb.Do(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	failures, open := cb.State()
	assert.Equal(t, 0, failures)
	assert.False(t, open)
}

func TestBreaker_HalfOpenTrialFailureReopens(t *testing.T) {
	tl := logging.NewTestLogger()
	cb := NewCircuitBreaker("dialer", 1, 10*time.Second, tl.Logger)

	now := time.Now()
	cb.now = func() time.Time { return now }

	calls := 0
	down := errors.New("down")
	_ = cb.Do(context.Background(), failingOp(down, &calls))
	_, open := cb.State()
	require.True(t, open)

	// Trial fails: breaker re-opens with a fresh reset window.
	now = now.Add(11 * time.Second)
	err := cb.Do(context.Background(), failingOp(down, &calls))
	require.ErrorIs(t, err, down)

	now = now.Add(5 * time.Second)
	err = cb.Do(context.Background(), failingOp(down, &calls))
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, calls)
}

func TestBreaker_HalfOpenAdmitsSingleTrial(t *testing.T) {
	tl := logging.NewTestLogger()
	cb := NewCircuitBreaker("dialer", 1, 10*time.Second, tl.Logger)

	now := time.Now()
	cb.now = func() time.Time { return now }

	down := errors.New("down")
	calls := 0
	_ = cb.Do(context.Background(), failingOp(down, &calls))
	now = now.Add(11 * time.Second)

	// First caller past the reset window holds the trial slot; callers
	// arriving while the trial is in flight are rejected.
	started := make(chan struct{})
	release := make(chan struct{})
	trialErr := make(chan error, 1)
	go func() {
		trialErr <- cb.Do(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := cb.Do(context.Background(), failingOp(down, &calls))
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1, calls)

	close(release)
	require.NoError(t, <-trialErr)
	_, open := cb.State()
	assert.False(t, open)
}

func TestBreaker_ComposesWithExecutor(t *testing.T) {
	tl := logging.NewTestLogger()
	exec := NewExecutor(map[string]Policy{
		"dialer": {MaxRetries: 2, BaseDelay: time.Millisecond, Strategy: StrategyFixed},
	}, tl.Logger, withSleep(func(ctx context.Context, d time.Duration) error { return nil }))
	cb := NewCircuitBreaker("dialer", 1, time.Minute, tl.Logger)

	down := errors.New("down")
	calls := 0
	// The breaker wraps the whole retrying operation: one breaker failure
	// per exhausted retry sequence.
	err := cb.Do(context.Background(), func(ctx context.Context) error {
		return exec.Do(ctx, "dialer", failingOp(down, &calls))
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)

	err = cb.Do(context.Background(), func(ctx context.Context) error {
		return exec.Do(ctx, "dialer", failingOp(down, &calls))
	})
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, calls)
}

func TestBreakers_LazyPerService(t *testing.T) {
	tl := logging.NewTestLogger()
	table := NewBreakers(3, time.Minute, tl.Logger, nil)

	a := table.For("dialer")
	b := table.For("sms")
	assert.NotSame(t, a, b)
	assert.Same(t, a, table.For("dialer"))
}
