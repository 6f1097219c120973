package workloads

import (
	"context"

	"github.com/opst/rollout/pkg/domain"
)

// Orchestrator runs workloads and reports their health.
type Orchestrator interface {
	// SetDesiredImage makes the workload run ref.
	//
	// It is idempotent: when the workload already wants ref, it changes nothing.
	//
	// # Returns
	//
	// - error: WorkloadNotFound, OrchestratorRejected (both fatal) or OrchestratorUnavailable (retryable) kind.
	SetDesiredImage(ctx context.Context, workload domain.WorkloadKey, ref domain.ArtifactReference) error

	// GetHealth takes a snapshot of replicas of the workload.
	GetHealth(ctx context.Context, workload domain.WorkloadKey) (domain.Health, error)
}
