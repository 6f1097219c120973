package k8s

import (
	"context"

	kubeapps "k8s.io/api/apps/v1"
	kubecore "k8s.io/api/core/v1"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// subset of kubernetes.Interface
type K8sClient interface {
	GetDeployment(ctx context.Context, namespace string, deplname string) (*kubeapps.Deployment, error)
	UpdateDeployment(ctx context.Context, namespace string, depl *kubeapps.Deployment) (*kubeapps.Deployment, error)

	FindPods(ctx context.Context, namespace string, selector *kubeapimeta.LabelSelector) ([]kubecore.Pod, error)
}

// A wrapper for kubernetes.Interface; because it does not prefer method chain-style invocations of that type.
type k8sClient struct {
	client kubernetes.Interface
}

// type check: k8sClient implements K8sClient
var _ K8sClient = &k8sClient{}

func WrapK8sClient(c kubernetes.Interface) K8sClient {
	return &k8sClient{client: c}
}

func (k *k8sClient) GetDeployment(ctx context.Context, namespace string, deplname string) (*kubeapps.Deployment, error) {
	return k.client.AppsV1().Deployments(namespace).Get(ctx, deplname, kubeapimeta.GetOptions{})
}

func (k *k8sClient) UpdateDeployment(ctx context.Context, namespace string, depl *kubeapps.Deployment) (*kubeapps.Deployment, error) {
	return k.client.AppsV1().Deployments(namespace).Update(ctx, depl, kubeapimeta.UpdateOptions{})
}

func (k *k8sClient) FindPods(ctx context.Context, namespace string, selector *kubeapimeta.LabelSelector) ([]kubecore.Pod, error) {
	sel, err := kubeapimeta.LabelSelectorAsSelector(selector)
	if err != nil {
		return nil, err
	}
	resp, err := k.client.CoreV1().Pods(namespace).List(ctx, kubeapimeta.ListOptions{
		LabelSelector: sel.String(),
	})
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}
