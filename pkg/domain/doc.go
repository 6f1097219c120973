package domain

// domain package contains the models of rollouts, shared by the controller and its collaborators.
//
// `domain/ENTITY.go` has entities and pure functions over them.
// The collaborators (registry, orchestrator and manifest store) live in their own packages
// and speak these types.
//
// # Entities
//
// - `ArtifactReference`: an image in a repository, addressed by tag.
// The tag is derived from a source revision; the same revision always makes the same tag.
//
// - `WorkloadKey`: which workload (name and namespace) a rollout targets.
//
// - `DeploymentIntent`: the desired state of a workload, as the orchestrator owns it.
//
// - `Health`: a snapshot of a workload's replicas, reported by the orchestrator.
//
// - `RolloutRecord`: the durable record of the image applied to a workload lastly.
// It is stored with a `VersionToken` for optimistic concurrency.
