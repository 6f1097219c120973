package rollout

import (
	"time"

	xe "github.com/opst/rollout/pkg/errors"
)

// ExitStatus is the process exit code for a result.
type ExitStatus int

const (
	ExitSuccess ExitStatus = 0

	// retryable errors did not go away. A new attempt may succeed.
	ExitRetryExhausted ExitStatus = 2

	// configuration errors, or states needing manual intervention.
	ExitFatal ExitStatus = 3

	// the workload is reverted to the image before the attempt.
	ExitRolledBack ExitStatus = 4
)

// Result is the structured outcome of an attempt. Each attempt produces exactly one.
type Result struct {
	AttemptID string `json:"attemptId"`
	Revision  string `json:"revision"`
	Workload  string `json:"workload"`
	Namespace string `json:"namespace"`

	FinalState State `json:"finalState"`

	// image the workload is set to at the end of the attempt.
	AppliedImage string `json:"appliedImage,omitempty"`

	Error     string  `json:"error,omitempty"`
	ErrorKind xe.Kind `json:"errorKind,omitempty"`

	// the workload is reverted to the pre-attempt image.
	RolledBack bool `json:"rolledBack"`

	// the workload or the record may need manual intervention.
	Degraded bool `json:"degraded"`

	Transitions []Transition `json:"transitions"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	// the error, for errors.Is/As.
	Err error `json:"-"`
}

func (r Result) Succeeded() bool {
	return r.FinalState == Committed
}

// States returns visited states in order, starting with Idle.
func (r Result) States() []State {
	states := []State{Idle}
	for _, t := range r.Transitions {
		states = append(states, t.To)
	}
	return states
}

// ExitStatus maps the result to an exit code.
func (r Result) ExitStatus() ExitStatus {
	switch {
	case r.FinalState == Committed:
		return ExitSuccess
	case r.RolledBack:
		return ExitRolledBack
	case r.Degraded, r.ErrorKind.Fatal(),
		r.ErrorKind == xe.CommitConflict, r.ErrorKind == xe.VerificationTimeout:
		return ExitFatal
	default:
		return ExitRetryExhausted
	}
}
