package mock

import (
	"context"
	"sync"
	"testing"

	"github.com/opst/rollout/pkg/domain"
	"github.com/opst/rollout/pkg/registry"
)

type MockRegistry struct {
	t *testing.T

	Impl struct {
		Push   func(ctx context.Context, ref domain.ArtifactReference) error
		Exists func(ctx context.Context, ref domain.ArtifactReference) (bool, error)
	}

	mu    sync.Mutex
	Calls struct {
		Push   []domain.ArtifactReference
		Exists []domain.ArtifactReference
	}
}

var _ registry.Registry = &MockRegistry{}

func New(t *testing.T) *MockRegistry {
	return &MockRegistry{t: t}
}

func (m *MockRegistry) Push(ctx context.Context, ref domain.ArtifactReference) error {
	m.t.Helper()

	m.mu.Lock()
	m.Calls.Push = append(m.Calls.Push, ref)
	m.mu.Unlock()

	if m.Impl.Push == nil {
		m.t.Fatal("Push is not implemented")
	}
	return m.Impl.Push(ctx, ref)
}

func (m *MockRegistry) Exists(ctx context.Context, ref domain.ArtifactReference) (bool, error) {
	m.t.Helper()

	m.mu.Lock()
	m.Calls.Exists = append(m.Calls.Exists, ref)
	m.mu.Unlock()

	if m.Impl.Exists == nil {
		return false, nil
	}
	return m.Impl.Exists(ctx, ref)
}
