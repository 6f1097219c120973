// Package hook calls webhooks around rollouts.
package hook

import (
	"context"
	"errors"
)

// Hook is an interface for before/after hooks.
type Hook[T any] interface {
	// Before is called before the value T is processed.
	//
	// When it returns an error, the value should not be processed.
	Before(context.Context, T) error

	// After is called after the value T is processed.
	After(context.Context, T) error
}

var ErrHookFailed = errors.New("hook failed")

// None is a hook that does nothing.
type None[T any] struct{}

func (None[T]) Before(context.Context, T) error {
	return nil
}

func (None[T]) After(context.Context, T) error {
	return nil
}
