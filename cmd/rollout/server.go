package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/opst/rollout/cmd/rollout/handlers"
	system "github.com/opst/rollout/pkg"
	"github.com/opst/rollout/pkg/metrics"
	"github.com/opst/rollout/pkg/rollout"
	"github.com/opst/rollout/pkg/utils/echoutil"
	"github.com/prometheus/client_golang/prometheus"
)

var API_ROOT = "/api"

func api(subpath string) string {
	if !strings.HasSuffix(subpath, "/") {
		subpath += "/"
	}
	return fmt.Sprintf("%s/%s", API_ROOT, subpath)
}

// BuildServer builds the http server and the controller behind it.
//
// Attempts triggered over http are bound to base, not to requests.
// The controller logs with the logger of the server.
func BuildServer(
	base context.Context,
	sys system.System,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	loglevel string,
) (*echo.Echo, *rollout.Controller) {
	e := echo.New()
	e.HideBanner = true
	echoutil.SetLevel(e, loglevel)

	e.HTTPErrorHandler = func(err error, ctx echo.Context) {
		e.DefaultHTTPErrorHandler(err, ctx)
		e.Logger.Error(err)
	}

	e.Pre(middleware.AddTrailingSlash())
	e.Use(echoutil.LogHandlerFunc)

	var logger *log.Logger
	if l, ok := e.Logger.(*log.Logger); ok {
		logger = l
	}
	ctrl := sys.Controller(logger, m)

	secret := []byte(sys.Config().Server().TriggerSecret())
	e.POST(
		api("rollouts"),
		handlers.PostRolloutHandler(ctrl, base),
		handlers.RequireToken(secret),
	)
	e.GET(
		api("rollouts/:namespace/:workload"),
		handlers.GetRolloutHandler(ctrl, "namespace", "workload"),
	)
	e.GET("/metrics/", echo.WrapHandler(metrics.Handler(gatherer)))

	return e, ctrl
}
