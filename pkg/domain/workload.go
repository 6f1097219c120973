package domain

import (
	"fmt"
	"strings"

	"github.com/opst/rollout/pkg/utils/retry"
	"k8s.io/apimachinery/pkg/util/validation"
)

// WorkloadKey identifies a rollout target.
type WorkloadKey struct {
	Namespace string
	Name      string
}

func (k WorkloadKey) String() string {
	return k.Namespace + "/" + k.Name
}

// Validate checks that the key is a valid name of a kubernetes object:
// namespace is a DNS-1123 label and name is a DNS-1123 subdomain.
func (k WorkloadKey) Validate() error {
	if k.Name == "" {
		return fmt.Errorf("workload name is empty")
	}
	if k.Namespace == "" {
		return fmt.Errorf("namespace of workload %q is empty", k.Name)
	}
	if msgs := validation.IsDNS1123Label(k.Namespace); 0 < len(msgs) {
		return fmt.Errorf("namespace %q is invalid: %s", k.Namespace, strings.Join(msgs, "; "))
	}
	if msgs := validation.IsDNS1123Subdomain(k.Name); 0 < len(msgs) {
		return fmt.Errorf("workload name %q is invalid: %s", k.Name, strings.Join(msgs, "; "))
	}
	return nil
}

// DeploymentIntent is the desired state of a workload.
//
// Orchestrators own it. Rollouts only submit DesiredImage.
type DeploymentIntent struct {
	Workload     WorkloadKey
	DesiredImage ArtifactReference
	Replicas     uint
}

// Health is a snapshot of replicas of a workload.
type Health struct {
	// replicas the workload wants.
	DesiredReplicas int32

	// replicas observed, including ones of older revisions not yet terminated.
	TotalReplicas int32

	// replicas passing readiness.
	ReadyReplicas int32

	// replicas created from the current spec.
	UpdatedReplicas int32

	// image in the current spec.
	CurrentImage string

	// image of each observed replica.
	ReplicaImages []string
}

func (h Health) String() string {
	return fmt.Sprintf(
		"%d/%d ready (total %d, updated %d) image=%s",
		h.ReadyReplicas, h.DesiredReplicas, h.TotalReplicas, h.UpdatedReplicas, h.CurrentImage,
	)
}

// ConvergedOn checks that the workload runs target on all replicas.
//
// # Returns
//
// - nil: converged.
//
// - retry.ErrRetry: not yet. Some replicas are not ready, not updated, or still on another image.
func (h Health) ConvergedOn(target ArtifactReference) error {
	image := target.String()
	if h.CurrentImage != image {
		return fmt.Errorf("%w: spec has %s, not %s", retry.ErrRetry, h.CurrentImage, image)
	}
	if h.TotalReplicas != h.DesiredReplicas || int(h.TotalReplicas) != len(h.ReplicaImages) {
		return fmt.Errorf("%w: %d replicas observed for %d desired", retry.ErrRetry, len(h.ReplicaImages), h.DesiredReplicas)
	}
	for _, ri := range h.ReplicaImages {
		if ri != image {
			return fmt.Errorf("%w: a replica still runs %s", retry.ErrRetry, ri)
		}
	}
	if h.UpdatedReplicas < h.DesiredReplicas || h.ReadyReplicas < h.DesiredReplicas {
		return fmt.Errorf("%w: %s", retry.ErrRetry, h)
	}
	return nil
}
