// Package retry runs an operation under a bounded attempt budget.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retries exhausted")

// Backoff returns the delay before the given attempt (attempt >= 1 is the first retry).
type Backoff func(attempt int) time.Duration

// Exponential doubles the delay each attempt: base, 2*base, 4*base...
func Exponential(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return time.Duration(math.Pow(2, float64(attempt-1))) * base
	}
}

// Constant waits the same delay before every retry.
func Constant(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}

// Policy describes how an operation is retried.
type Policy struct {
	MaxAttempts int
	Backoff     Backoff
	// Terminal reports errors that must stop the loop immediately.
	// Terminal errors are returned as-is, not wrapped in ErrExhausted.
	Terminal func(error) bool
	// OnRetry is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Do calls fn until it succeeds, returns a terminal error, the budget runs out or ctx is done.
// Attempts are numbered from 1.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if p.Terminal != nil && p.Terminal(err) {
			return err
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
