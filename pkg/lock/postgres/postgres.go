// Package postgres locks workloads with session-level advisory locks of PostgreSQL,
// so that rollout controllers in several processes share locks.
package postgres

import (
	"context"
	"errors"
	"sync"
	"time"

	kpool "github.com/opst/rollout/pkg/conn/db/postgres/pool"
	"github.com/opst/rollout/pkg/domain"
	xe "github.com/opst/rollout/pkg/errors"
	"github.com/opst/rollout/pkg/lock"
)

const releaseTimeout = 10 * time.Second

type locker struct {
	pool kpool.Pool
}

func New(pool kpool.Pool) lock.Locker {
	return &locker{pool: pool}
}

// lock key for the workload.
//
// the key is a hash, so different workloads may share a lock in rare cases.
func key(workload domain.WorkloadKey) string {
	return "rollout:" + workload.String()
}

func (l *locker) TryLock(ctx context.Context, workload domain.WorkloadKey) (lock.Release, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, classify(workload, err)
	}

	var locked bool
	if err := conn.QueryRow(
		ctx, `select pg_try_advisory_lock(hashtextextended($1, 0))`, key(workload),
	).Scan(&locked); err != nil {
		conn.Release()
		return nil, classify(workload, err)
	}
	if !locked {
		conn.Release()
		return nil, xe.NewKind(xe.AttemptInProgress, workload.String(), nil)
	}

	once := new(sync.Once)
	return func() {
		once.Do(func() { unlock(conn, workload) })
	}, nil
}

// unlock releases the advisory lock and returns the connection to the pool.
//
// When the lock cannot be released, the connection is closed instead.
// Its session ends, and so do the locks held by it.
func unlock(conn kpool.Conn, workload domain.WorkloadKey) {
	defer conn.Release()
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	var unlocked bool
	err := conn.QueryRow(
		ctx, `select pg_advisory_unlock(hashtextextended($1, 0))`, key(workload),
	).Scan(&unlocked)
	if err == nil && unlocked {
		return
	}

	dctx, dcancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer dcancel()
	conn.Discard(dctx)
}

func classify(workload domain.WorkloadKey, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return xe.NewKind(xe.Cancelled, workload.String(), errors.Join(err, xe.ErrCancelled))
	}
	return xe.NewKind(xe.StoreUnavailable, workload.String(), err)
}
