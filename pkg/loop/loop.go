// Package loop runs polling tasks.
package loop

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDeadline is returned when the loop runs past the deadline set by WithDeadline.
var ErrDeadline = errors.New("loop: deadline exceeded")

type Next struct {
	// if not nil, breaks with error
	err error

	// if quit == true and err == nil, breaks without error
	quit bool

	// otherwise, continue loop with interval.
	interval time.Duration
}

func (n Next) String() string {
	if n.err != nil {
		return fmt.Sprintf("[break] with error: %v", n.err)
	}
	if n.quit {
		return "[break] without error"
	}

	return fmt.Sprintf("[continue] interval: %s", n.interval)
}

// Continue the loop after sleeping interval.
func Continue(interval time.Duration) Next {
	return Next{interval: interval}
}

// Break the loop. Pass non-nil err to break with error.
func Break(err error) Next {
	return Next{quit: true, err: err}
}

// Task receives the value of the last iteration and returns the value for the next one.
type Task[T any] func(context.Context, T) (T, Next)

type options struct {
	callTimeout time.Duration
	deadline    time.Duration
}

type Option func(*options)

// WithCallTimeout bounds each call of the task.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) { o.callTimeout = d }
}

// WithDeadline bounds the whole loop. When it passes, Start returns ErrDeadline.
//
// Tasks see the deadline in their context.
func WithDeadline(d time.Duration) Option {
	return func(o *options) { o.deadline = d }
}

// Start runs task repeatedly until it breaks, ctx is done, or the deadline passes.
//
// The first call is task(ctx, init). Each call after that gets the value returned by the previous one,
// after sleeping the interval given in Continue. Sleeping is interrupted by ctx.
//
// Example: poll until a resource gets ready, every second, for a minute.
//
//	Start(ctx, status{}, func(ctx context.Context, _ status) (status, Next) {
//		s, err := client.Get(ctx)
//		if err != nil {
//			return s, Break(err)
//		}
//		if s.Ready {
//			return s, Break(nil)
//		}
//		return s, Continue(time.Second)
//	}, WithDeadline(time.Minute))
//
// # Returns
//
// - T: the value the task returns at last. It is returned with or without error.
//
// - error: error in Break(error), ctx.Err() if ctx is done, or ErrDeadline.
// Breaking without error wins over the deadline passing at the same time.
func Start[T any](ctx context.Context, init T, task Task[T], opts ...Option) (T, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if err := ctx.Err(); err != nil {
		return init, err
	}

	lctx := ctx
	if 0 < o.deadline {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, o.deadline)
		defer cancel()
	}

	// reports why the loop is stopped by context.
	stopped := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w (%s)", ErrDeadline, o.deadline)
	}

	value := init
	for {
		v, n := call(lctx, o.callTimeout, task, value)
		value = v

		if n.quit && n.err == nil {
			return value, nil
		}
		if lctx.Err() != nil {
			if n.err != nil && ctx.Err() == nil {
				return value, errors.Join(stopped(), n.err)
			}
			return value, stopped()
		}
		if n.err != nil {
			return value, n.err
		}

		timer := time.NewTimer(n.interval)
		select {
		case <-lctx.Done():
			// shutting down comes first; the timer is dropped.
			timer.Stop()
			return value, stopped()
		case <-timer.C:
		}
	}
}

func call[T any](ctx context.Context, timeout time.Duration, task Task[T], value T) (T, Next) {
	if timeout <= 0 {
		return task(ctx, value)
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return task(cctx, value)
}
