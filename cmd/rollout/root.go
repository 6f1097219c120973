package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/gommon/log"
	system "github.com/opst/rollout/pkg"
	"github.com/opst/rollout/pkg/buildtime"
	rcfg "github.com/opst/rollout/pkg/configs/rollout"
	"github.com/opst/rollout/pkg/kubeutil"
	"github.com/opst/rollout/pkg/utils/echoutil"
	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
)

var (
	configPath  string
	loglevel    string
	kubeContext string
)

var rootCmd = &cobra.Command{
	Use:   "rollout",
	Short: "Roll out newly built artifacts to workloads",
	Long: `rollout pushes an artifact built from a source revision, points a workload at it,
and waits for the workload to converge.

The image is recorded as the applied image when replicas converge.
Otherwise the workload is reverted to the image it ran before.`,
	Version:       buildtime.VersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config", "",
		fmt.Sprintf("path to config file. default: $%s", rcfg.ENV_ROLLOUT_CONFIG),
	)
	rootCmd.PersistentFlags().StringVar(&loglevel, "loglevel", "info", "log level. debug|info|warn|error|off")
	rootCmd.PersistentFlags().StringVar(&kubeContext, "kube-context", "", "context in kubeconfig to be used")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

// exitError stops the process with the status, without printing errors.
type exitError struct {
	status int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.status)
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return os.Getenv(rcfg.ENV_ROLLOUT_CONFIG)
}

func newLogger(prefix string) *log.Logger {
	logger := log.New(prefix)
	lvl, ok := echoutil.ParseLevel(loglevel)
	logger.SetLevel(lvl)
	if !ok {
		logger.Warnf("unknown loglevel: %s . fall-backed to warn", loglevel)
	}
	return logger
}

// attach loads the config, and builds collaborators.
//
// When withCluster is false, the workload orchestrator is not connected to any cluster.
func attach(ctx context.Context, withCluster bool) (system.System, error) {
	conf, err := rcfg.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}

	var clientset kubernetes.Interface
	if withCluster {
		cs, err := kubeutil.ConnectToK8s(conf.Orchestrator().Kubeconfig(), kubeContext)
		if err != nil {
			return nil, err
		}
		clientset = cs
	}
	return system.Attach(ctx, clientset, conf)
}
