package mock

import (
	"context"
	"errors"
	"sync"

	k8s "github.com/opst/rollout/pkg/workloads/k8s"
	kubeapps "k8s.io/api/apps/v1"
	kubecore "k8s.io/api/core/v1"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
)

type MockClient struct {
	Impl struct {
		GetDeployment    func(ctx context.Context, namespace string, deplname string) (*kubeapps.Deployment, error)
		UpdateDeployment func(ctx context.Context, namespace string, depl *kubeapps.Deployment) (*kubeapps.Deployment, error)
		FindPods         func(ctx context.Context, namespace string, selector *kubeapimeta.LabelSelector) ([]kubecore.Pod, error)
	}

	mu     sync.Mutex
	Called struct {
		GetDeployment    uint64
		UpdateDeployment uint64
		FindPods         uint64
	}

	// deployments passed to UpdateDeployment, in order.
	Updated []*kubeapps.Deployment
}

// MockClient implements k8s.K8sClient
var _ k8s.K8sClient = &MockClient{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) GetDeployment(ctx context.Context, namespace string, deplname string) (*kubeapps.Deployment, error) {
	m.mu.Lock()
	m.Called.GetDeployment += 1
	m.mu.Unlock()

	if m.Impl.GetDeployment == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.GetDeployment(ctx, namespace, deplname)
}

func (m *MockClient) UpdateDeployment(ctx context.Context, namespace string, depl *kubeapps.Deployment) (*kubeapps.Deployment, error) {
	m.mu.Lock()
	m.Called.UpdateDeployment += 1
	m.Updated = append(m.Updated, depl)
	m.mu.Unlock()

	if m.Impl.UpdateDeployment == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.UpdateDeployment(ctx, namespace, depl)
}

func (m *MockClient) FindPods(ctx context.Context, namespace string, selector *kubeapimeta.LabelSelector) ([]kubecore.Pod, error) {
	m.mu.Lock()
	m.Called.FindPods += 1
	m.mu.Unlock()

	if m.Impl.FindPods == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.FindPods(ctx, namespace, selector)
}
