package memory

import (
	"context"
	"sync"

	"github.com/opst/rollout/pkg/domain"
	xe "github.com/opst/rollout/pkg/errors"
	"github.com/opst/rollout/pkg/lock"
)

type locker struct {
	mu   sync.Mutex
	held map[domain.WorkloadKey]struct{}
}

// New returns a Locker valid in this process.
func New() lock.Locker {
	return &locker{held: map[domain.WorkloadKey]struct{}{}}
}

func (l *locker) TryLock(_ context.Context, workload domain.WorkloadKey) (lock.Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[workload]; ok {
		return nil, xe.NewKind(xe.AttemptInProgress, workload.String(), nil)
	}
	l.held[workload] = struct{}{}

	once := new(sync.Once)
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.held, workload)
		})
	}, nil
}
