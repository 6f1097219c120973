package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRetry tells Blocking and Do that the call should be repeated.
var ErrRetry = errors.New("retry")

// ErrExhausted is returned (joined with the last error) when attempts run out.
var ErrExhausted = errors.New("retry attempts exhausted")

// Backoff is a (blocking) function returns when to retry.
//
// # Args
//
// - context: context. If context is canceled, Backoff should return ctx.Err().
//
// # Returns
//
// - error: nil if retry, non-nil if not.
type Backoff func(context.Context) error

// StaticBackoff returns a Backoff function that waits for a fixed interval.
func StaticBackoff(interval time.Duration) Backoff {
	return ExponentialBackoff(interval, 1)
}

// ExponentialBackoff returns a Backoff function that waits with exponential backoff.
//
// For N-th call, it waits for `initialInterval * r^N` or context to be done.
func ExponentialBackoff(initialInterval time.Duration, r float64) Backoff {
	interval := initialInterval
	return func(ctx context.Context) error {
		timer := time.NewTimer(interval)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			interval = time.Duration(int64(float64(interval) * r))
			return nil
		}
	}
}

// Policy is a bounded exponential backoff.
type Policy struct {
	// wait before the 2nd attempt.
	Base time.Duration

	// multiplier of waits.
	Factor float64

	// max number of calls, including the first one. Values less than 1 mean 1.
	MaxAttempts int
}

// Default is 1s, x2, 5 attempts.
var Default = Policy{Base: 1 * time.Second, Factor: 2, MaxAttempts: 5}

func (p Policy) String() string {
	return fmt.Sprintf("base=%s factor=%g attempts=%d", p.Base, p.Factor, p.MaxAttempts)
}

// Backoff returns a new Backoff following this policy.
func (p Policy) Backoff() Backoff {
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	return ExponentialBackoff(p.Base, factor)
}

// Do calls f immediately, and again after backoff while shouldRetry(err) holds,
// at most p.MaxAttempts times in total.
//
// # Args
//
// - ctx: context. When it is done while waiting, Do returns the last error joined with ctx.Err().
//
// - p: policy
//
// - shouldRetry: predicates retryable errors. When nil, only errors wrapping ErrRetry are retried.
//
// - f: the call. It receives the 1-origin attempt number.
//
// # Returns
//
// - T: last value f returned
//
// - error: nil on success. The last error of f when it is not retryable.
// When attempts run out, the last error joined with ErrExhausted.
func Do[T any](ctx context.Context, p Policy, shouldRetry func(error) bool, f func(attempt int) (T, error)) (T, error) {
	if shouldRetry == nil {
		shouldRetry = func(err error) bool { return errors.Is(err, ErrRetry) }
	}
	limit := p.MaxAttempts
	if limit < 1 {
		limit = 1
	}
	b := p.Backoff()

	var last T
	var err error
	for attempt := 1; ; attempt++ {
		last, err = f(attempt)
		if err == nil {
			return last, nil
		}
		if !shouldRetry(err) {
			return last, err
		}
		if limit <= attempt {
			return last, errors.Join(err, ErrExhausted)
		}
		if berr := b(ctx); berr != nil {
			return last, errors.Join(err, berr)
		}
	}
}

// Blocking calls f until it returns nil or non-retry error.
//
// Unlike Do, it waits before each call (including the first one), and has no limit of attempts.
// When f returns ErrRetry, Blocking calls f again after backoff.
func Blocking[T any](ctx context.Context, b Backoff, f func() (T, error)) (T, error) {
	last := *new(T)
	for {
		if err := b(ctx); err != nil {
			return last, err
		}

		var err error
		last, err = f()
		if err == nil {
			return last, nil
		}
		if errors.Is(err, ErrRetry) {
			continue
		}
		return last, err
	}
}
