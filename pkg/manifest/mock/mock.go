package mock

import (
	"context"
	"sync"
	"testing"

	"github.com/opst/rollout/pkg/domain"
	"github.com/opst/rollout/pkg/manifest"
)

type WriteCall struct {
	Workload domain.WorkloadKey
	Record   domain.RolloutRecord
	Expected domain.VersionToken
}

type MockStore struct {
	t *testing.T

	Impl struct {
		Read             func(ctx context.Context, workload domain.WorkloadKey) (domain.RolloutRecord, domain.VersionToken, error)
		WriteIfUnchanged func(ctx context.Context, workload domain.WorkloadKey, record domain.RolloutRecord, expected domain.VersionToken) error
	}

	mu    sync.Mutex
	Calls struct {
		Read             []domain.WorkloadKey
		WriteIfUnchanged []WriteCall
	}
}

var _ manifest.Store = &MockStore{}

func New(t *testing.T) *MockStore {
	return &MockStore{t: t}
}

func (m *MockStore) Read(ctx context.Context, workload domain.WorkloadKey) (domain.RolloutRecord, domain.VersionToken, error) {
	m.t.Helper()

	m.mu.Lock()
	m.Calls.Read = append(m.Calls.Read, workload)
	m.mu.Unlock()

	if m.Impl.Read == nil {
		return domain.RolloutRecord{}, domain.NoVersion, nil
	}
	return m.Impl.Read(ctx, workload)
}

func (m *MockStore) WriteIfUnchanged(ctx context.Context, workload domain.WorkloadKey, record domain.RolloutRecord, expected domain.VersionToken) error {
	m.t.Helper()

	m.mu.Lock()
	m.Calls.WriteIfUnchanged = append(m.Calls.WriteIfUnchanged, WriteCall{Workload: workload, Record: record, Expected: expected})
	m.mu.Unlock()

	if m.Impl.WriteIfUnchanged == nil {
		m.t.Fatal("WriteIfUnchanged is not implemented")
	}
	return m.Impl.WriteIfUnchanged(ctx, workload, record, expected)
}
