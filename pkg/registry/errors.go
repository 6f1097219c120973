package registry

import (
	"context"
	"errors"
	"io/fs"
	"net/http"

	gcrname "github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	xe "github.com/opst/rollout/pkg/errors"
)

// Classify converts errors from registry clients into RegistryUnavailable or RegistryRejected kind.
//
// - Authentication/authorization failures, malformed names and requests are rejected.
//
// - Throttling, server errors and network errors are unavailable.
//
// - Cancellation is Cancelled.
//
// Other errors are taken as unavailable, so that they are retried (with a bound).
func Classify(message string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return xe.NewKind(xe.Cancelled, message, errors.Join(err, xe.ErrCancelled))
	}

	if terr := new(transport.Error); errors.As(err, &terr) {
		switch sc := terr.StatusCode; {
		case sc == http.StatusTooManyRequests, sc == http.StatusRequestTimeout, 500 <= sc:
			return xe.NewKind(xe.RegistryUnavailable, message, err)
		case 400 <= sc:
			return xe.NewKind(xe.RegistryRejected, message, err)
		}
	}

	if nerr := new(gcrname.ErrBadName); errors.As(err, &nerr) {
		return xe.NewKind(xe.RegistryRejected, message, err)
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return xe.NewKind(xe.RegistryRejected, message, err)
	}

	return xe.NewKind(xe.RegistryUnavailable, message, err)
}
