package errors

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/rollout/pkg/api/types/errors"
	xe "github.com/opst/rollout/pkg/errors"
)

type ErrorMessageOption func(in *apierr.ErrorMessage) *apierr.ErrorMessage

func WithAdvice(advice string) ErrorMessageOption {
	return func(in *apierr.ErrorMessage) *apierr.ErrorMessage {
		if advice != "" {
			in.Advice = advice
		}
		return in
	}
}

// WithError sets the cause. Classified errors also set errorKind.
func WithError(err error) ErrorMessageOption {
	return func(in *apierr.ErrorMessage) *apierr.ErrorMessage {
		if err != nil {
			in.Cause = err
			if kind := xe.KindOf(err); kind != xe.Unknown {
				in.ErrorKind = kind.String()
			}
		}
		return in
	}
}

func NewErrorMessage(code int, reason string, opts ...ErrorMessageOption) *echo.HTTPError {
	msg := apierr.ErrorMessage{Reason: reason}
	for _, opt := range opts {
		msg = *opt(&msg)
	}

	return echo.NewHTTPError(code, msg).SetInternal(msg)
}

func ServiceUnavailable(advice string, err error) *echo.HTTPError {
	return NewErrorMessage(
		http.StatusServiceUnavailable,
		"service unavailable temporaly",
		WithAdvice(advice),
		WithError(err),
	)
}

func NotFound() *echo.HTTPError {
	return NewErrorMessage(http.StatusNotFound, "not found")
}

func BadRequest(advice string, err error) *echo.HTTPError {
	return NewErrorMessage(
		http.StatusBadRequest,
		"bad request",
		WithAdvice(advice),
		WithError(err),
	)
}

func Unauthorized(advice string, err error) *echo.HTTPError {
	return NewErrorMessage(
		http.StatusUnauthorized,
		"unauthorized",
		WithAdvice(advice),
		WithError(err),
	)
}

func Conflict(message string, options ...ErrorMessageOption) *echo.HTTPError {
	return NewErrorMessage(
		http.StatusConflict,
		message,
		options...,
	)
}

func InternalServerError(err error) *echo.HTTPError {
	return NewErrorMessage(
		http.StatusInternalServerError,
		"unexpected error",
		WithError(err),
	)
}

// ForKind responds err by its kind.
//
// - AttemptInProgress: 409
//
// - Cancelled, or retryable kinds: 503
//
// - fatal kinds: 400
//
// - otherwise: 500
func ForKind(err error) *echo.HTTPError {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ServiceUnavailable("retry later", err)
	}
	switch kind := xe.KindOf(err); {
	case kind == xe.AttemptInProgress:
		return Conflict(
			"rollout for the workload is in progress",
			WithAdvice("retry after the attempt ends"),
			WithError(err),
		)
	case kind.Retryable(), kind == xe.Cancelled:
		return ServiceUnavailable("retry later", err)
	case kind.Fatal():
		return BadRequest("", err)
	default:
		return InternalServerError(err)
	}
}
