package main

import (
	"encoding/json"

	apirollouts "github.com/opst/rollout/pkg/api/types/rollouts"
	"github.com/opst/rollout/pkg/domain"
	"github.com/spf13/cobra"
)

var showFlags struct {
	workload  string
	namespace string
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the applied image recorded for a workload",
	RunE:  runShow,
}

func init() {
	showCmd.Flags().StringVar(&showFlags.workload, "workload", "", "name of the deployment")
	showCmd.Flags().StringVar(&showFlags.namespace, "namespace", "default", "namespace of the deployment")
	showCmd.MarkFlagRequired("workload")
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	workload := domain.WorkloadKey{Namespace: showFlags.namespace, Name: showFlags.workload}
	if err := workload.Validate(); err != nil {
		return err
	}

	sys, err := attach(ctx, false)
	if err != nil {
		return err
	}
	defer sys.Close()

	rec, _, err := sys.Store().Read(ctx, workload)
	if err != nil {
		return err
	}

	detail := apirollouts.Detail{Workload: workload.Name, Namespace: workload.Namespace}
	if !rec.IsZero() {
		detail.Record = &apirollouts.Record{
			AppliedImage: rec.AppliedImage.String(),
			Revision:     rec.RevisionID,
			Timestamp:    rec.Timestamp,
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "    ")
	return enc.Encode(detail)
}
