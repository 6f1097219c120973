package main

import (
	"encoding/json"

	"github.com/opst/rollout/pkg/domain"
	"github.com/opst/rollout/pkg/rollout"
	"github.com/spf13/cobra"
)

var runFlags struct {
	revision  string
	workload  string
	namespace string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Roll out a revision, and wait for the result",
	Long: `Roll out the artifact built from a revision to a workload.

The result is printed as JSON. Exit status:
  0: committed
  2: retryable failure (collaborators unavailable, cancelled, or another attempt is in flight)
  3: fatal failure, or the workload is left in a degraded state
  4: the workload did not converge and is reverted`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runFlags.revision, "revision", "", "source revision (e.g. git commit hash)")
	runCmd.Flags().StringVar(&runFlags.workload, "workload", "", "name of the deployment")
	runCmd.Flags().StringVar(&runFlags.namespace, "namespace", "default", "namespace of the deployment")
	runCmd.MarkFlagRequired("revision")
	runCmd.MarkFlagRequired("workload")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sys, err := attach(ctx, true)
	if err != nil {
		return err
	}
	defer sys.Close()

	ctrl := sys.Controller(newLogger("rollout"), nil)
	result := ctrl.Run(ctx, rollout.Trigger{
		Revision: runFlags.revision,
		Workload: domain.WorkloadKey{Namespace: runFlags.namespace, Name: runFlags.workload},
	})

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "    ")
	if err := enc.Encode(result); err != nil {
		return err
	}

	if status := result.ExitStatus(); status != rollout.ExitSuccess {
		return &exitError{status: int(status)}
	}
	return nil
}
