package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	system "github.com/opst/rollout/pkg"
	"github.com/opst/rollout/pkg/buildtime"
	"github.com/opst/rollout/pkg/utils/filewatch"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve an http api to trigger rollouts",
	Long: `Serve an http api to trigger rollouts.

  POST /api/rollouts/                       start a rollout. body: {"revision", "workload", "namespace"}
  GET  /api/rollouts/:namespace/:workload/  the last result and the applied image of a workload
  GET  /metrics/                            prometheus metrics

The server restarts when the config file is modified.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger("serve")
	logger.Infoj(log.JSON{
		"message":  "starting",
		"version":  buildtime.VERSION(),
		"revision": buildtime.GIT_REVISION(),
	})

	for {
		path := resolveConfigPath()
		wctx, wcancel, err := filewatch.UntilModified(ctx, path)
		if err != nil {
			return err
		}

		err = serve(ctx, wctx)
		wcancel()

		if ctx.Err() == nil && errors.Is(context.Cause(wctx), filewatch.ErrModified) {
			logger.Infoj(log.JSON{"message": "config is modified. restarting", "config": path})
			continue
		}
		return err
	}
}

// serve runs a server until until is done.
//
// Attempts are bound to ctx. In-flight attempts are waited for before returning.
func serve(ctx context.Context, until context.Context) error {
	sys, err := attach(ctx, true)
	if err != nil {
		return err
	}
	defer sys.Close()

	m, reg := system.NewMetrics()
	server, ctrl := BuildServer(ctx, sys, m, reg, loglevel)
	for _, r := range server.Routes() {
		server.Logger.Debugf("- mount handler: %s %s", strings.ToUpper(r.Method), r.Path)
	}

	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		port := sys.Config().Server().Port()
		if err := server.Start(fmt.Sprintf(":%d", port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ch <- err
		}
	}()

	var serr error
	select {
	case <-until.Done():
		server.Logger.Infof("context has been done: %s, cause: %s", until.Err(), context.Cause(until))
	case err := <-ch:
		if err != nil {
			server.Logger.Error("server stops with error:", err)
			serr = err
		}
	}

	server.Logger.Info("shutting down...")
	qctx, qcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer qcancel()
	if err := server.Shutdown(qctx); err != nil {
		serr = errors.Join(serr, err)
	}

	server.Logger.Info("waiting for in-flight attempts...")
	ctrl.Wait()
	return serr
}
