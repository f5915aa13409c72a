// Package retry is the single bounded-retry primitive shared by the
// I/O-fronting lookups: quote pricing, decimals fetches, and the
// market-data pull use it instead of carrying their own loops. The trade
// executor keeps its own attempt loop because each retry there changes
// the order, not just repeats it.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backoff maps a zero-based attempt index to the delay before the next try.
type Backoff func(attempt int) time.Duration

// Exponential doubles (or scales by factor) the base delay each attempt.
func Exponential(base time.Duration, factor float64) Backoff {
	return func(attempt int) time.Duration {
		d := float64(base)
		for i := 0; i < attempt; i++ {
			d *= factor
		}
		return time.Duration(d)
	}
}

// Constant waits the same delay between every attempt.
func Constant(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}

// permanent marks an error that must not be retried.
type permanent struct{ err error }

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent wraps err so Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// Do runs fn up to attempts times, sleeping per backoff between failures.
// fn receives the zero-based attempt index. The last error is returned
// wrapped with the attempt count; context cancellation aborts the wait.
func Do(ctx context.Context, attempts int, backoff Backoff, fn func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		err := fn(i)
		if err == nil {
			return nil
		}
		var p *permanent
		if errors.As(err, &p) {
			return p.err
		}
		lastErr = err

		if i == attempts-1 {
			break
		}
		timer := time.NewTimer(backoff(i))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
