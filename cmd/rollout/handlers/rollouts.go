package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	binderr "github.com/opst/rollout/pkg/api-types-binding/errors"
	apirollouts "github.com/opst/rollout/pkg/api/types/rollouts"
	"github.com/opst/rollout/pkg/domain"
	"github.com/opst/rollout/pkg/rollout"
)

// Controller is the part of *rollout.Controller used by handlers.
type Controller interface {
	Start(ctx context.Context, trigger rollout.Trigger) (string, error)
	LastResult(workload domain.WorkloadKey) (rollout.Result, bool)
	Record(ctx context.Context, workload domain.WorkloadKey) (domain.RolloutRecord, error)
}

// PostRolloutHandler starts a rollout attempt in background.
//
// Attempts outlive the request. They are bound to base, which should be done when the server stops.
//
// # Responses
//
// - 202: attempt is started. body is apirollouts.Accepted.
//
// - 400: malformed body, or invalid revision.
//
// - 409: another attempt for the workload is in flight.
//
// - 503: the lock cannot be taken for now.
func PostRolloutHandler(ctrl Controller, base context.Context) echo.HandlerFunc {
	return func(c echo.Context) error {
		body := new(apirollouts.Trigger)
		if err := (&echo.DefaultBinder{}).BindBody(c, body); err != nil {
			return binderr.BadRequest("body should be JSON of {revision, workload, namespace}", err)
		}
		if err := body.Validate(); err != nil {
			return binderr.BadRequest("", err)
		}
		if body.Namespace == "" {
			body.Namespace = "default"
		}
		if _, err := domain.TagOf(body.Revision); err != nil {
			return binderr.BadRequest("revision should start with 8 hexadecimal characters", err)
		}

		workload := domain.WorkloadKey{Namespace: body.Namespace, Name: body.Workload}
		id, err := ctrl.Start(base, rollout.Trigger{Revision: body.Revision, Workload: workload})
		if err != nil {
			return binderr.ForKind(err)
		}

		return c.JSON(http.StatusAccepted, apirollouts.Accepted{
			AttemptID: id,
			Workload:  workload.Name,
			Namespace: workload.Namespace,
		})
	}
}

// GetRolloutHandler responds the last result and the stored record of the workload.
//
// # Responses
//
// - 200: body is apirollouts.Detail.
//
// - 404: no results and no records for the workload.
//
// - 503: the manifest store is unavailable.
func GetRolloutHandler(ctrl Controller, namespaceParam string, workloadParam string) echo.HandlerFunc {
	return func(c echo.Context) error {
		workload := domain.WorkloadKey{
			Namespace: c.Param(namespaceParam),
			Name:      c.Param(workloadParam),
		}
		if err := workload.Validate(); err != nil {
			return binderr.BadRequest("", err)
		}

		detail := apirollouts.Detail{Workload: workload.Name, Namespace: workload.Namespace}
		if r, ok := ctrl.LastResult(workload); ok {
			detail.LastResult = &r
		}

		rec, err := ctrl.Record(c.Request().Context(), workload)
		if err != nil {
			return binderr.ForKind(err)
		}
		if !rec.IsZero() {
			detail.Record = &apirollouts.Record{
				AppliedImage: rec.AppliedImage.String(),
				Revision:     rec.RevisionID,
				Timestamp:    rec.Timestamp,
			}
		}

		if detail.LastResult == nil && detail.Record == nil {
			return binderr.NotFound()
		}
		return c.JSON(http.StatusOK, detail)
	}
}
