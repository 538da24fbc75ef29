// Package retry runs an operation repeatedly until it succeeds, fails
// permanently, runs out of attempts, or its context is done.
//
// Permanent failures are recognized with typed predicates (errors.Is and
// errors.As) instead of matching error text, so a change in an upstream
// message never turns a permanent failure into an endless retry.
package retry

import (
	"context"
	"errors"
	"time"
)

// Predicate reports whether err should stop further attempts.
type Predicate func(err error) bool

// Backoff returns how long to wait after the given failed attempt (1-based).
type Backoff func(attempt int) time.Duration

type Policy struct {
	// Attempts caps the number of calls. Zero or negative means unbounded.
	Attempts int
	// Backoff is consulted between attempts. Nil means no wait.
	Backoff Backoff
	// Permanent lists predicates that end the loop immediately.
	Permanent []Predicate
}

// Once is the policy of a single attempt.
var Once = Policy{Attempts: 1}

// Fixed waits d between every attempt.
func Fixed(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}

// Exponential doubles base after each failed attempt, capped at max.
func Exponential(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if max > 0 && d >= max {
				return max
			}
		}
		if max > 0 && d > max {
			return max
		}
		return d
	}
}

// Is matches errors that wrap target.
func Is(target error) Predicate {
	return func(err error) bool { return errors.Is(err, target) }
}

// As matches errors that wrap a value of type T.
func As[T error]() Predicate {
	return func(err error) bool {
		var target T
		return errors.As(err, &target)
	}
}

// IsPermanent reports whether any of the policy's predicates matches err.
func (p Policy) IsPermanent(err error) bool {
	for _, pred := range p.Permanent {
		if pred(err) {
			return true
		}
	}
	return false
}

// Do calls fn with a 1-based attempt number until it returns nil or the
// policy gives up. It returns the number of attempts made and the last error
// returned by fn. If ctx is done while waiting between attempts, Do stops and
// returns the last error from fn; callers check ctx.Err() to tell the cases
// apart.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if p.IsPermanent(lastErr) {
			return attempt, lastErr
		}
		if p.Attempts > 0 && attempt >= p.Attempts {
			return attempt, lastErr
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if err := sleep(ctx, wait); err != nil {
			return attempt, lastErr
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
