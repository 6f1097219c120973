package mock

import (
	"context"
	"sync"
	"testing"

	"github.com/opst/rollout/pkg/domain"
	wl "github.com/opst/rollout/pkg/workloads"
)

type SetDesiredImageCall struct {
	Workload domain.WorkloadKey
	Ref      domain.ArtifactReference
}

type MockOrchestrator struct {
	t *testing.T

	Impl struct {
		SetDesiredImage func(ctx context.Context, workload domain.WorkloadKey, ref domain.ArtifactReference) error
		GetHealth       func(ctx context.Context, workload domain.WorkloadKey) (domain.Health, error)
	}

	mu    sync.Mutex
	Calls struct {
		SetDesiredImage []SetDesiredImageCall
		GetHealth       []domain.WorkloadKey
	}
}

var _ wl.Orchestrator = &MockOrchestrator{}

func New(t *testing.T) *MockOrchestrator {
	return &MockOrchestrator{t: t}
}

func (m *MockOrchestrator) SetDesiredImage(ctx context.Context, workload domain.WorkloadKey, ref domain.ArtifactReference) error {
	m.t.Helper()

	m.mu.Lock()
	m.Calls.SetDesiredImage = append(m.Calls.SetDesiredImage, SetDesiredImageCall{Workload: workload, Ref: ref})
	m.mu.Unlock()

	if m.Impl.SetDesiredImage == nil {
		m.t.Fatal("SetDesiredImage is not implemented")
	}
	return m.Impl.SetDesiredImage(ctx, workload, ref)
}

func (m *MockOrchestrator) GetHealth(ctx context.Context, workload domain.WorkloadKey) (domain.Health, error) {
	m.t.Helper()

	m.mu.Lock()
	m.Calls.GetHealth = append(m.Calls.GetHealth, workload)
	m.mu.Unlock()

	if m.Impl.GetHealth == nil {
		m.t.Fatal("GetHealth is not implemented")
	}
	return m.Impl.GetHealth(ctx, workload)
}

// Images passed to SetDesiredImage, in order.
func (m *MockOrchestrator) AppliedImages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	images := make([]string, 0, len(m.Calls.SetDesiredImage))
	for _, c := range m.Calls.SetDesiredImage {
		images = append(images, c.Ref.String())
	}
	return images
}
