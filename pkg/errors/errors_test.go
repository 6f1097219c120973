package errors_test

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"testing"

	xe "github.com/opst/rollout/pkg/errors"
)

func createError(message string) error {
	return xe.New(message)
}

func TestNewError(t *testing.T) {
	t.Run("it knows location where it is created.", func(t *testing.T) {
		testee := createError("test error")
		errMessage := testee.Error()

		_, thisFile, _, _ := runtime.Caller(0)

		if !strings.Contains(errMessage, "createError") {
			t.Errorf("it does not know function name: %s", errMessage)
		}
		if !strings.Contains(errMessage, thisFile) {
			t.Errorf("it does not know file (%s): %s", thisFile, errMessage)
		}
	})

	t.Run("Wrap(nil) is nil", func(t *testing.T) {
		if err := xe.Wrap(nil); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestKind(t *testing.T) {
	root := errors.New("connection refused")

	t.Run("KindOf finds the kind through wrappers", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", xe.Wrap(xe.NewKind(xe.RegistryUnavailable, "push", root)))

		if got := xe.KindOf(err); got != xe.RegistryUnavailable {
			t.Errorf("kind: (actual, expected) = (%s, %s)", got, xe.RegistryUnavailable)
		}
		if !errors.Is(err, xe.Sentinel(xe.RegistryUnavailable)) {
			t.Error("errors.Is does not match the sentinel of its kind")
		}
		if errors.Is(err, xe.Sentinel(xe.RegistryRejected)) {
			t.Error("errors.Is matches a sentinel of another kind")
		}
		if !errors.Is(err, root) {
			t.Error("cause is lost")
		}
	})

	t.Run("KindOf for unclassified errors", func(t *testing.T) {
		if got := xe.KindOf(root); got != xe.Unknown {
			t.Errorf("unexpected kind: %s", got)
		}
		if got := xe.KindOf(nil); got != "" {
			t.Errorf("unexpected kind for nil: %s", got)
		}
		if got := xe.KindOf(fmt.Errorf("%w", xe.ErrCancelled)); got != xe.Cancelled {
			t.Errorf("unexpected kind for cancellation: %s", got)
		}
	})

	for kind, expected := range map[xe.Kind]struct{ retryable, fatal bool }{
		xe.InvalidRevision:         {retryable: false, fatal: true},
		xe.RegistryUnavailable:     {retryable: true, fatal: false},
		xe.RegistryRejected:        {retryable: false, fatal: true},
		xe.OrchestratorUnavailable: {retryable: true, fatal: false},
		xe.WorkloadNotFound:        {retryable: false, fatal: true},
		xe.VerificationTimeout:     {retryable: false, fatal: false},
		xe.CommitConflict:          {retryable: false, fatal: false},
		xe.StoreUnavailable:        {retryable: true, fatal: false},
		xe.AttemptInProgress:       {retryable: false, fatal: false},
	} {
		t.Run("classification of "+kind.String(), func(t *testing.T) {
			if kind.Retryable() != expected.retryable {
				t.Errorf("Retryable: (actual, expected) = (%v, %v)", kind.Retryable(), expected.retryable)
			}
			if kind.Fatal() != expected.fatal {
				t.Errorf("Fatal: (actual, expected) = (%v, %v)", kind.Fatal(), expected.fatal)
			}
		})
	}
}
