package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/opst/rollout/cmd/rollout/handlers"
	rcfg "github.com/opst/rollout/pkg/configs/rollout"
	"github.com/spf13/cobra"
)

var tokenFlags struct {
	subject string
	ttl     time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a token for triggering rollouts over HTTP",
	Long:  `Issue a token signed with server.triggerSecret in the config file.`,
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenFlags.subject, "subject", "ci", "subject of the token")
	tokenCmd.Flags().DurationVar(&tokenFlags.ttl, "ttl", 24*time.Hour, "lifetime of the token")
}

func runToken(cmd *cobra.Command, args []string) error {
	conf, err := rcfg.Load(resolveConfigPath())
	if err != nil {
		return err
	}
	secret := conf.Server().TriggerSecret()
	if secret == "" {
		return errors.New("server.triggerSecret is not configured. triggers are not authenticated")
	}

	token, err := handlers.IssueToken([]byte(secret), tokenFlags.subject, time.Now(), tokenFlags.ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}
