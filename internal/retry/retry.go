// Package retry provides a small retry-with-backoff combinator shared by
// every outbound caller. A policy names its attempt budget, its backoff
// schedule, and a classifier deciding which errors are worth retrying.
package retry

import (
	"context"
	"time"
)

// Policy configures a retry loop.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Backoff returns the delay before the given attempt (1-based, so
	// Backoff(1) is the delay after the first failure). Nil means no delay.
	Backoff func(attempt int) time.Duration

	// Retryable reports whether an error should be retried. Nil retries
	// everything.
	Retryable func(err error) bool
}

// ExponentialBackoff returns a backoff function of base × attempt
// (base 2s gives 2s, 4s, 6s, ...), capped at max. A zero max means
// uncapped.
func ExponentialBackoff(base, max time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := base * time.Duration(attempt)
		if max > 0 && d > max {
			return max
		}
		return d
	}
}

// Do runs fn until it succeeds, the policy's attempts are exhausted, an
// error is classified non-retryable, or ctx is cancelled. The last error
// is returned on failure; ctx.Err() when cancelled mid-backoff.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(attempt)
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}
