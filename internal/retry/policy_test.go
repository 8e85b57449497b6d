package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crawlerrors "spotcrawl/internal/errors"
)

func noSleep(slept *[]time.Duration) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return ctx.Err()
	}
}

func TestPolicy_Delay(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		attempt int
		want    time.Duration
	}{
		{"fixed first", Fixed(5, 2*time.Second), 1, 2 * time.Second},
		{"fixed fourth", Fixed(5, 2*time.Second), 4, 2 * time.Second},
		{"exponential first", Exponential(5, time.Second, 30*time.Second, 2), 1, time.Second},
		{"exponential third", Exponential(5, time.Second, 30*time.Second, 2), 3, 4 * time.Second},
		{"exponential capped", Exponential(10, time.Second, 5*time.Second, 2), 8, 5 * time.Second},
		{"zero delay", Fixed(3, 0), 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Delay(tt.attempt))
		})
	}
}

func TestPolicy_Do_PersistentFailureRunsExactlyMaxAttempts(t *testing.T) {
	var slept []time.Duration
	p := Fixed(3, 5*time.Second)
	p.Sleep = noSleep(&slept)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context, s State) error {
		calls++
		assert.Equal(t, calls, s.Attempt)
		assert.Equal(t, 3, s.MaxAttempts)
		return errors.New("control vanished")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, errors.Is(err, crawlerrors.ErrRetryExhausted))
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, slept, "no sleep after the last attempt")
}

func TestPolicy_Do_StopsOnSuccess(t *testing.T) {
	var slept []time.Duration
	p := Fixed(5, time.Second)
	p.Sleep = noSleep(&slept)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context, s State) error {
		calls++
		if calls < 2 {
			return errors.New("not yet")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, slept, 1)
}

func TestPolicy_Do_NonRetryableStopsImmediately(t *testing.T) {
	var slept []time.Duration
	p := Fixed(5, time.Second)
	p.Sleep = noSleep(&slept)
	p.Retryable = crawlerrors.IsRetryable

	calls := 0
	fatal := crawlerrors.ConfigError("bad task", nil)
	err := p.Do(context.Background(), func(ctx context.Context, s State) error {
		calls++
		return fatal
	})

	assert.Same(t, fatal, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, slept)
}

func TestPolicy_Do_OnRetryCalledBetweenAttempts(t *testing.T) {
	var slept []time.Duration
	p := Fixed(3, 0)
	p.Sleep = noSleep(&slept)

	var seen []int
	p.OnRetry = func(s State, err error) { seen = append(seen, s.Attempt) }

	_ = p.Do(context.Background(), func(ctx context.Context, s State) error {
		return errors.New("fail")
	})

	assert.Equal(t, []int{1, 2}, seen)
}

func TestPolicy_Do_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Fixed(5, time.Hour)

	calls := 0
	err := p.Do(ctx, func(ctx context.Context, s State) error {
		calls++
		cancel()
		return errors.New("interrupted")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPolicy_Do_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = Policy{}.Do(context.Background(), func(ctx context.Context, s State) error {
		calls++
		return errors.New("x")
	})
	assert.Equal(t, 1, calls)
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), 0))
}
