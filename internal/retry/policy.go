// Package retry provides the single retry policy used for surface
// resolution, menu expansion and crawl-unit execution.
package retry

import (
	"context"
	"fmt"
	"time"

	crawlerrors "spotcrawl/internal/errors"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// State describes the attempt in progress. It is created per Do call and
// never shared between calls.
type State struct {
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
}

// Last reports whether this is the final attempt.
func (s State) Last() bool {
	return s.Attempt >= s.MaxAttempts
}

// Policy defines bounded retry behaviour. A Multiplier of 1 or less gives a
// fixed backoff of InitialDelay between attempts.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Retryable decides whether an error consumes another attempt. Nil
	// retries every error.
	Retryable func(error) bool

	// OnRetry is called after a failed attempt that will be retried.
	OnRetry func(s State, err error)

	// Sleep replaces the timer wait, mainly for tests.
	Sleep SleepFunc
}

// Fixed returns a policy with a constant delay between attempts.
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{MaxAttempts: attempts, InitialDelay: delay, Multiplier: 1}
}

// Exponential returns a policy whose delay grows by multiplier up to max.
func Exponential(attempts int, initial, max time.Duration, multiplier float64) Policy {
	return Policy{MaxAttempts: attempts, InitialDelay: initial, MaxDelay: max, Multiplier: multiplier}
}

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.InitialDelay <= 0 {
		return 0
	}
	delay := p.InitialDelay
	if p.Multiplier > 1 {
		for i := 1; i < attempt; i++ {
			delay = time.Duration(float64(delay) * p.Multiplier)
			if p.MaxDelay > 0 && delay >= p.MaxDelay {
				return p.MaxDelay
			}
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempts are used up. Exhaustion returns a RetryExhausted error wrapping
// the last failure. Context cancellation stops the loop and returns the
// context error.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, s State) error) error {
	max := p.attempts()
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= max; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		s := State{Attempt: attempt, MaxAttempts: max, Delay: p.Delay(attempt)}
		err := fn(ctx, s)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if s.Last() {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(s, err)
		}
		if err := sleep(ctx, s.Delay); err != nil {
			return err
		}
	}

	return crawlerrors.Wrap(crawlerrors.KindRetryExhausted, "retry", lastErr,
		fmt.Sprintf("gave up after %d attempts", max))
}

// Sleep waits for d unless ctx is cancelled first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
