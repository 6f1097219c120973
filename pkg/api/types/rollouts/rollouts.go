package rollouts

import (
	"fmt"
	"time"

	"github.com/opst/rollout/pkg/rollout"
)

// Trigger is the body of POST /api/rollouts/.
type Trigger struct {
	Revision  string `json:"revision"`
	Workload  string `json:"workload"`
	Namespace string `json:"namespace"`
}

func (t Trigger) Validate() error {
	if t.Revision == "" {
		return fmt.Errorf(`required field missing: "revision"`)
	}
	if t.Workload == "" {
		return fmt.Errorf(`required field missing: "workload"`)
	}
	return nil
}

// Accepted is the response for an accepted trigger.
type Accepted struct {
	AttemptID string `json:"attemptId"`
	Workload  string `json:"workload"`
	Namespace string `json:"namespace"`
}

// Record is the stored rollout record.
type Record struct {
	AppliedImage string    `json:"appliedImage"`
	Revision     string    `json:"revision"`
	Timestamp    time.Time `json:"timestamp"`
}

// Detail is the response of GET /api/rollouts/:namespace/:workload/.
type Detail struct {
	Workload  string `json:"workload"`
	Namespace string `json:"namespace"`

	// last result in the server. Absent when no attempts have finished since the server started.
	LastResult *rollout.Result `json:"lastResult,omitempty"`

	// Absent when no rollouts have been committed.
	Record *Record `json:"record,omitempty"`
}
