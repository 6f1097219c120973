// Error kinds of rollouts and an error wrapper which remembers where it is created.
//
// Usage:
//
//	err := xe.NewKind(xe.RegistryUnavailable, "push failed", cause)
//	if xe.KindOf(err) == xe.RegistryUnavailable { ... }
//
// A wrapped error reads like
//
//	@ funcname "file" l42 (note) <- cause
//
// so, when you replace `<-` with newlines, you get "stacks" of where you marked.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// Kind classifies why a rollout step failed.
type Kind string

const (
	// revision identifier is empty or malformed.
	InvalidRevision Kind = "InvalidRevision"

	// registry cannot be reached or answers with a transient error. Retryable.
	RegistryUnavailable Kind = "RegistryUnavailable"

	// registry refuses the artifact (auth, naming, ...). Fatal.
	RegistryRejected Kind = "RegistryRejected"

	// orchestrator cannot be reached or answers with a transient error. Retryable.
	OrchestratorUnavailable Kind = "OrchestratorUnavailable"

	// orchestrator refuses the request (RBAC, validation). Fatal.
	OrchestratorRejected Kind = "OrchestratorRejected"

	// the workload does not exist in the namespace. Fatal.
	WorkloadNotFound Kind = "WorkloadNotFound"

	// replicas did not converge on the new image in time. Triggers rollback.
	VerificationTimeout Kind = "VerificationTimeout"

	// manifest store has been changed since it was read.
	CommitConflict Kind = "CommitConflict"

	// manifest store cannot be read or written. Retryable.
	StoreUnavailable Kind = "StoreUnavailable"

	// another attempt for the same workload is in flight.
	AttemptInProgress Kind = "AttemptInProgress"

	// a pre-rollout hook refused the attempt. Fatal.
	HookRejected Kind = "HookRejected"

	// the attempt is cancelled from outside.
	Cancelled Kind = "Cancelled"

	// not classified.
	Unknown Kind = "Unknown"
)

func (k Kind) String() string {
	return string(k)
}

// Retryable reports whether a call failing with the kind may succeed when it is called again.
func (k Kind) Retryable() bool {
	switch k {
	case RegistryUnavailable, OrchestratorUnavailable, StoreUnavailable:
		return true
	default:
		return false
	}
}

// Fatal reports whether the kind is a configuration error which retries cannot fix.
func (k Kind) Fatal() bool {
	switch k {
	case InvalidRevision, RegistryRejected, OrchestratorRejected, WorkloadNotFound, HookRejected:
		return true
	default:
		return false
	}
}

// KindError is an error classified with Kind.
type KindError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *KindError) Error() string {
	switch {
	case e.Cause == nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Message == "":
		return fmt.Sprintf("%s / caused by: %v", e.Kind, e.Cause)
	default:
		return fmt.Sprintf("%s: %s / caused by: %v", e.Kind, e.Message, e.Cause)
	}
}

func (e *KindError) Unwrap() error {
	return e.Cause
}

// Is matches *KindError with the same Kind, so errors.Is(err, xe.Sentinel(kind)) works.
func (e *KindError) Is(target error) bool {
	t, ok := target.(*KindError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Cause == nil && t.Kind == e.Kind
}

// Sentinel returns a comparison target for errors.Is.
func Sentinel(kind Kind) error {
	return &KindError{Kind: kind}
}

// NewKind creates a classified error which remembers the caller.
func NewKind(kind Kind, message string, cause error) error {
	return wrap("", &KindError{Kind: kind, Message: message, Cause: cause}, 1)
}

// KindOf returns the outermost Kind found in err's chain.
//
// For nil, it returns "". For unclassified errors, Unknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if ke := new(KindError); errors.As(err, &ke) {
		return ke.Kind
	}
	if errors.Is(err, ErrCancelled) {
		return Cancelled
	}
	return Unknown
}

// ErrCancelled is the root of Cancelled errors raised from context cancellation.
var ErrCancelled = errors.New("cancelled")

type ErrWithCaller struct {
	file     string
	line     int
	funcname string
	note     string
	err      error
}

func (e *ErrWithCaller) File() string {
	return e.file
}

func (e *ErrWithCaller) Line() int {
	return e.line
}

func (e *ErrWithCaller) Error() string {
	if e.note == "" {
		return fmt.Sprintf(`@ %s "%s" l%d <- %s`, e.funcname, e.file, e.line, e.err.Error())
	}
	return fmt.Sprintf(`@ %s "%s" l%d (%s) <- %s`, e.funcname, e.file, e.line, e.note, e.err.Error())
}

func (e *ErrWithCaller) Unwrap() error {
	return e.err
}

func New(text string) error {
	return wrap("", errors.New(text), 1)
}

// Wrap marks err with the location where Wrap is called. Wrap(nil) is nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return wrap("", err, 1)
}

// WrapAsOuter is Wrap, but marks the caller of the function calling WrapAsOuter (depth = 1).
func WrapAsOuter(err error, depth int) error {
	if err == nil {
		return nil
	}
	return wrap("", err, depth+1)
}

func WrapWithNote(note string, err error) error {
	if err == nil {
		return nil
	}
	return wrap(note, err, 1)
}

func wrap(note string, err error, depth int) error {
	pc, file, line, ok := runtime.Caller(depth + 1)
	funcname := "(unknown func)"
	if !ok {
		file = "?"
		line = -1
	}
	if fn := runtime.FuncForPC(pc); fn != nil {
		funcname = fn.Name()
	}

	return &ErrWithCaller{
		funcname: funcname,
		file:     file,
		line:     line,
		note:     note,
		err:      err,
	}
}
