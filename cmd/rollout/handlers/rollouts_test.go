package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/opst/rollout/cmd/rollout/handlers"
	httptestutil "github.com/opst/rollout/internal/testutils/http"
	apierr "github.com/opst/rollout/pkg/api/types/errors"
	apirollouts "github.com/opst/rollout/pkg/api/types/rollouts"
	"github.com/opst/rollout/pkg/domain"
	xe "github.com/opst/rollout/pkg/errors"
	"github.com/opst/rollout/pkg/rollout"
)

type mockController struct {
	start      func(ctx context.Context, trigger rollout.Trigger) (string, error)
	lastResult func(workload domain.WorkloadKey) (rollout.Result, bool)
	record     func(ctx context.Context, workload domain.WorkloadKey) (domain.RolloutRecord, error)

	started []rollout.Trigger
}

var _ handlers.Controller = &mockController{}

func (m *mockController) Start(ctx context.Context, trigger rollout.Trigger) (string, error) {
	m.started = append(m.started, trigger)
	return m.start(ctx, trigger)
}

func (m *mockController) LastResult(workload domain.WorkloadKey) (rollout.Result, bool) {
	if m.lastResult == nil {
		return rollout.Result{}, false
	}
	return m.lastResult(workload)
}

func (m *mockController) Record(ctx context.Context, workload domain.WorkloadKey) (domain.RolloutRecord, error) {
	if m.record == nil {
		return domain.RolloutRecord{}, nil
	}
	return m.record(ctx, workload)
}

// httpError unpacks an error returned from handlers.
func httpError(t *testing.T, err error) (int, apierr.ErrorMessage) {
	t.Helper()
	herr := new(echo.HTTPError)
	if !errors.As(err, &herr) {
		t.Fatalf("not a HTTPError: %v", err)
	}
	msg, ok := herr.Message.(apierr.ErrorMessage)
	if !ok {
		t.Fatalf("unexpected message: %#v", herr.Message)
	}
	return herr.Code, msg
}

func TestPostRolloutHandler(t *testing.T) {
	type When struct {
		body  string
		start func(ctx context.Context, trigger rollout.Trigger) (string, error)
	}
	type Then struct {
		code      int
		errorKind string
		trigger   *rollout.Trigger
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			type baseKey struct{}
			base := context.WithValue(context.Background(), baseKey{}, "base")

			ctrl := &mockController{start: func(ctx context.Context, trigger rollout.Trigger) (string, error) {
				if ctx.Value(baseKey{}) != "base" {
					t.Error("attempt is not bound to the base context")
				}
				if when.start == nil {
					t.Fatal("unexpected call")
				}
				return when.start(ctx, trigger)
			}}
			testee := handlers.PostRolloutHandler(ctrl, base)

			e := echo.New()
			c, resp := httptestutil.Post(
				e, "/api/rollouts/", strings.NewReader(when.body),
				httptestutil.ContentType("application/json"),
			)
			err := testee(c)

			if then.code == http.StatusAccepted {
				if err != nil {
					t.Fatal(err)
				}
				if resp.Code != then.code {
					t.Errorf("status: %d", resp.Code)
				}
				actual := httptestutil.DecodeJSON[apirollouts.Accepted](t, resp)
				if actual.AttemptID != "attempt-1" {
					t.Errorf("attempt id: %s", actual.AttemptID)
				}
			} else {
				code, msg := httpError(t, err)
				if code != then.code {
					t.Errorf("status: (actual, expected) = (%d, %d)", code, then.code)
				}
				if msg.ErrorKind != then.errorKind {
					t.Errorf("errorKind: (actual, expected) = (%s, %s)", msg.ErrorKind, then.errorKind)
				}
			}

			if then.trigger == nil {
				if len(ctrl.started) != 0 {
					t.Errorf("started: %+v", ctrl.started)
				}
			} else if len(ctrl.started) != 1 || ctrl.started[0] != *then.trigger {
				t.Errorf("started: %+v", ctrl.started)
			}
		}
	}

	accept := func(context.Context, rollout.Trigger) (string, error) { return "attempt-1", nil }

	t.Run("it starts an attempt", theory(
		When{
			body:  `{"revision": "9314b46bxxxx", "workload": "sample-nestjs", "namespace": "default"}`,
			start: accept,
		},
		Then{
			code: http.StatusAccepted,
			trigger: &rollout.Trigger{
				Revision: "9314b46bxxxx",
				Workload: domain.WorkloadKey{Namespace: "default", Name: "sample-nestjs"},
			},
		},
	))

	t.Run("namespace defaults to default", theory(
		When{body: `{"revision": "9314b46bxxxx", "workload": "sample-nestjs"}`, start: accept},
		Then{
			code: http.StatusAccepted,
			trigger: &rollout.Trigger{
				Revision: "9314b46bxxxx",
				Workload: domain.WorkloadKey{Namespace: "default", Name: "sample-nestjs"},
			},
		},
	))

	t.Run("invalid revision is a bad request", theory(
		When{body: `{"revision": "main", "workload": "sample-nestjs"}`},
		Then{code: http.StatusBadRequest, errorKind: "InvalidRevision"},
	))

	t.Run("missing workload is a bad request", theory(
		When{body: `{"revision": "9314b46bxxxx"}`},
		Then{code: http.StatusBadRequest},
	))

	t.Run("broken body is a bad request", theory(
		When{body: `{"revision": `},
		Then{code: http.StatusBadRequest},
	))

	t.Run("attempt in progress is a conflict", theory(
		When{
			body: `{"revision": "9314b46bxxxx", "workload": "sample-nestjs"}`,
			start: func(context.Context, rollout.Trigger) (string, error) {
				return "", xe.NewKind(xe.AttemptInProgress, "default/sample-nestjs", nil)
			},
		},
		Then{
			code: http.StatusConflict, errorKind: "AttemptInProgress",
			trigger: &rollout.Trigger{
				Revision: "9314b46bxxxx",
				Workload: domain.WorkloadKey{Namespace: "default", Name: "sample-nestjs"},
			},
		},
	))

	t.Run("unavailable lock is a service unavailable", theory(
		When{
			body: `{"revision": "9314b46bxxxx", "workload": "sample-nestjs"}`,
			start: func(context.Context, rollout.Trigger) (string, error) {
				return "", xe.NewKind(xe.StoreUnavailable, "connection refused", nil)
			},
		},
		Then{
			code: http.StatusServiceUnavailable, errorKind: "StoreUnavailable",
			trigger: &rollout.Trigger{
				Revision: "9314b46bxxxx",
				Workload: domain.WorkloadKey{Namespace: "default", Name: "sample-nestjs"},
			},
		},
	))
}

func TestGetRolloutHandler(t *testing.T) {
	workload := domain.WorkloadKey{Namespace: "default", Name: "sample-nestjs"}
	params := httptestutil.PathParams{"namespace": "default", "workload": "sample-nestjs"}

	t.Run("it responds the last result and the record", func(t *testing.T) {
		at := time.Date(2026, 10, 19, 1, 2, 3, 0, time.UTC)
		ctrl := &mockController{
			lastResult: func(w domain.WorkloadKey) (rollout.Result, bool) {
				if w != workload {
					t.Errorf("workload: %+v", w)
				}
				return rollout.Result{AttemptID: "attempt-1", FinalState: rollout.Committed}, true
			},
			record: func(_ context.Context, w domain.WorkloadKey) (domain.RolloutRecord, error) {
				return domain.RolloutRecord{
					Workload:     w,
					AppliedImage: domain.ArtifactReference{Repository: "localhost:5000/sample-nestjs", Tag: "9314b46b"},
					RevisionID:   "9314b46bxxxx",
					Timestamp:    at,
				}, nil
			},
		}
		e := echo.New()
		c, resp := httptestutil.Get(e, "/api/rollouts/default/sample-nestjs/")
		httptestutil.SetParams(c, params)

		if err := handlers.GetRolloutHandler(ctrl, "namespace", "workload")(c); err != nil {
			t.Fatal(err)
		}
		if resp.Code != http.StatusOK {
			t.Errorf("status: %d", resp.Code)
		}
		actual := httptestutil.DecodeJSON[apirollouts.Detail](t, resp)
		if actual.LastResult == nil || actual.LastResult.AttemptID != "attempt-1" || actual.LastResult.FinalState != rollout.Committed {
			t.Errorf("last result: %+v", actual.LastResult)
		}
		if actual.Record == nil || actual.Record.AppliedImage != "localhost:5000/sample-nestjs:9314b46b" || !actual.Record.Timestamp.Equal(at) {
			t.Errorf("record: %+v", actual.Record)
		}
	})

	t.Run("it responds not found when nothing is known", func(t *testing.T) {
		e := echo.New()
		c, _ := httptestutil.Get(e, "/api/rollouts/default/sample-nestjs/")
		httptestutil.SetParams(c, params)

		err := handlers.GetRolloutHandler(&mockController{}, "namespace", "workload")(c)
		if code, _ := httpError(t, err); code != http.StatusNotFound {
			t.Errorf("status: %d", code)
		}
	})

	t.Run("it responds bad request for keys which are not object names", func(t *testing.T) {
		ctrl := &mockController{
			record: func(_ context.Context, w domain.WorkloadKey) (domain.RolloutRecord, error) {
				t.Errorf("store is read for %+v", w)
				return domain.RolloutRecord{}, nil
			},
		}
		e := echo.New()
		c, _ := httptestutil.Get(e, "/api/rollouts/../secrets/")
		httptestutil.SetParams(c, httptestutil.PathParams{"namespace": "..", "workload": "secrets"})

		err := handlers.GetRolloutHandler(ctrl, "namespace", "workload")(c)
		if code, _ := httpError(t, err); code != http.StatusBadRequest {
			t.Errorf("status: %d", code)
		}
	})

	t.Run("it responds service unavailable when the store is", func(t *testing.T) {
		ctrl := &mockController{
			record: func(context.Context, domain.WorkloadKey) (domain.RolloutRecord, error) {
				return domain.RolloutRecord{}, xe.NewKind(xe.StoreUnavailable, "disk", nil)
			},
		}
		e := echo.New()
		c, _ := httptestutil.Get(e, "/api/rollouts/default/sample-nestjs/")
		httptestutil.SetParams(c, params)

		err := handlers.GetRolloutHandler(ctrl, "namespace", "workload")(c)
		if code, msg := httpError(t, err); code != http.StatusServiceUnavailable || msg.ErrorKind != "StoreUnavailable" {
			t.Errorf("unexpected: %d %+v", code, msg)
		}
	})
}
