package file

import "github.com/opst/rollout/pkg/domain"

// SetHookBeforeRename replaces the hook called between writing a temporary file and renaming it.
//
// It returns a function to restore the hook.
func SetHookBeforeRename(hook func(tmp string, dest string) error) func() {
	orig := hookBeforeRename
	hookBeforeRename = hook
	return func() { hookBeforeRename = orig }
}

// PathOf returns the record file of workload in a store on root, skipping validation of workload.
func PathOf(root string, workload domain.WorkloadKey) (string, error) {
	return (&store{root: root}).path(workload)
}
