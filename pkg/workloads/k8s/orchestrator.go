package k8s

import (
	"context"
	"errors"
	"fmt"

	"github.com/opst/rollout/pkg/domain"
	xe "github.com/opst/rollout/pkg/errors"
	wl "github.com/opst/rollout/pkg/workloads"
	kubeapps "k8s.io/api/apps/v1"
	kubecore "k8s.io/api/core/v1"
	kubeerr "k8s.io/apimachinery/pkg/api/errors"
	kuberetry "k8s.io/client-go/util/retry"
)

type orchestrator struct {
	client    K8sClient
	container string
}

type Option func(*orchestrator)

// WithContainer chooses the container to be updated in pods of deployments.
//
// When it is not given, the first container is chosen.
func WithContainer(name string) Option {
	return func(o *orchestrator) {
		o.container = name
	}
}

// AttachOrchestrator makes an Orchestrator which handles workloads as Deployments.
func AttachOrchestrator(client K8sClient, options ...Option) wl.Orchestrator {
	o := &orchestrator{client: client}
	for _, opt := range options {
		opt(o)
	}
	return o
}

func (o *orchestrator) containerIndex(spec kubecore.PodSpec) (int, error) {
	if len(spec.Containers) == 0 {
		return -1, errors.New("pod template has no containers")
	}
	if o.container == "" {
		return 0, nil
	}
	for i, c := range spec.Containers {
		if c.Name == o.container {
			return i, nil
		}
	}
	return -1, fmt.Errorf("container %q is not found in pod template", o.container)
}

func (o *orchestrator) SetDesiredImage(ctx context.Context, workload domain.WorkloadKey, ref domain.ArtifactReference) error {
	image := ref.String()

	err := kuberetry.RetryOnConflict(kuberetry.DefaultRetry, func() error {
		depl, err := o.client.GetDeployment(ctx, workload.Namespace, workload.Name)
		if err != nil {
			return err
		}
		idx, err := o.containerIndex(depl.Spec.Template.Spec)
		if err != nil {
			return xe.NewKind(xe.OrchestratorRejected, workload.String(), err)
		}
		if depl.Spec.Template.Spec.Containers[idx].Image == image {
			return nil
		}

		updated := depl.DeepCopy()
		updated.Spec.Template.Spec.Containers[idx].Image = image
		_, err = o.client.UpdateDeployment(ctx, workload.Namespace, updated)
		return err
	})
	return classify(workload, err)
}

func (o *orchestrator) GetHealth(ctx context.Context, workload domain.WorkloadKey) (domain.Health, error) {
	depl, err := o.client.GetDeployment(ctx, workload.Namespace, workload.Name)
	if err != nil {
		return domain.Health{}, classify(workload, err)
	}

	idx, err := o.containerIndex(depl.Spec.Template.Spec)
	if err != nil {
		return domain.Health{}, xe.NewKind(xe.OrchestratorRejected, workload.String(), err)
	}

	pods, err := o.client.FindPods(ctx, workload.Namespace, depl.Spec.Selector)
	if err != nil {
		return domain.Health{}, classify(workload, err)
	}

	h := domain.Health{
		DesiredReplicas: desiredReplicas(depl),
		CurrentImage:    depl.Spec.Template.Spec.Containers[idx].Image,
		UpdatedReplicas: depl.Status.UpdatedReplicas,
	}
	if depl.Status.ObservedGeneration < depl.Generation {
		// the controller has not seen the latest spec yet.
		h.UpdatedReplicas = 0
	}

	for _, pod := range pods {
		switch pod.Status.Phase {
		case kubecore.PodSucceeded, kubecore.PodFailed:
			continue
		}
		h.TotalReplicas += 1
		h.ReplicaImages = append(h.ReplicaImages, o.podImage(pod))
		if podReady(pod) {
			h.ReadyReplicas += 1
		}
	}

	return h, nil
}

func (o *orchestrator) podImage(pod kubecore.Pod) string {
	idx, err := o.containerIndex(pod.Spec)
	if err != nil {
		return ""
	}
	return pod.Spec.Containers[idx].Image
}

func desiredReplicas(depl *kubeapps.Deployment) int32 {
	if depl.Spec.Replicas == nil {
		return 1
	}
	return *depl.Spec.Replicas
}

func podReady(pod kubecore.Pod) bool {
	if pod.DeletionTimestamp != nil {
		return false
	}
	for _, c := range pod.Status.Conditions {
		if c.Type == kubecore.PodReady {
			return c.Status == kubecore.ConditionTrue
		}
	}
	return false
}

// classify converts errors from kubernetes API into rollout error kinds.
func classify(workload domain.WorkloadKey, err error) error {
	if err == nil {
		return nil
	}
	if ke := new(xe.KindError); errors.As(err, &ke) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return xe.NewKind(xe.Cancelled, workload.String(), errors.Join(err, xe.ErrCancelled))
	}

	switch {
	case kubeerr.IsNotFound(err):
		return xe.NewKind(xe.WorkloadNotFound, workload.String(), err)
	case kubeerr.IsForbidden(err), kubeerr.IsUnauthorized(err), kubeerr.IsInvalid(err), kubeerr.IsBadRequest(err):
		return xe.NewKind(xe.OrchestratorRejected, workload.String(), err)
	default:
		return xe.NewKind(xe.OrchestratorUnavailable, workload.String(), err)
	}
}
