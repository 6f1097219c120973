// Package lock guards workloads so that at most one rollout attempt is in flight for each.
package lock

import (
	"context"

	"github.com/opst/rollout/pkg/domain"
)

// Release gives a lock back. Calling it twice is harmless.
type Release func()

type Locker interface {
	// TryLock takes the lock of the workload without waiting.
	//
	// # Returns
	//
	// - Release: call it when the attempt ends.
	//
	// - error: AttemptInProgress kind when the lock is held by another attempt.
	TryLock(ctx context.Context, workload domain.WorkloadKey) (Release, error)
}
