package main

import (
	"fmt"

	"github.com/opst/rollout/pkg/buildtime"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), buildtime.VersionString())
	},
}
