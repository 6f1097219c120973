package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opst/rollout/cmd/rollout/handlers"
	system "github.com/opst/rollout/pkg"
	rcfg "github.com/opst/rollout/pkg/configs/rollout"
	"github.com/opst/rollout/pkg/utils/try"
	"k8s.io/client-go/kubernetes/fake"
)

func TestBuildServer(t *testing.T) {
	ctx := context.Background()

	conf := try.To(rcfg.Unmarshal([]byte(fmt.Sprintf(`
registry:
  repository: localhost:5000/sample-nestjs
  source:
    image: localhost:5000/sample-nestjs:build
store:
  dir: %s
server:
  triggerSecret: s3cr3t
`, t.TempDir())))).OrFatal(t)

	sys := try.To(system.Attach(ctx, fake.NewSimpleClientset(), conf)).OrFatal(t)
	defer sys.Close()
	m, reg := system.NewMetrics()

	testee, ctrl := BuildServer(ctx, sys, m, reg, "off")
	defer ctrl.Wait()

	type When struct {
		method string
		path   string
		body   string
		header map[string]string
	}

	theory := func(when When, then int) func(*testing.T) {
		return func(t *testing.T) {
			req := httptest.NewRequest(when.method, when.path, strings.NewReader(when.body))
			req.Header.Set("Content-Type", "application/json")
			for k, v := range when.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			testee.ServeHTTP(rec, req)

			if rec.Code != then {
				t.Errorf("status code: (actual, expected) = (%d, %d): %s", rec.Code, then, rec.Body.String())
			}
		}
	}

	t.Run("metrics are served", theory(
		When{method: http.MethodGet, path: "/metrics"}, http.StatusOK,
	))
	t.Run("unknown workloads are not found", theory(
		When{method: http.MethodGet, path: "/api/rollouts/default/sample-nestjs"}, http.StatusNotFound,
	))
	t.Run("triggers without token are unauthorized", theory(
		When{
			method: http.MethodPost, path: "/api/rollouts",
			body: `{"revision": "9314b46bxxxx", "workload": "sample-nestjs"}`,
		},
		http.StatusUnauthorized,
	))
	t.Run("triggers with invalid revision are bad requests", theory(
		When{
			method: http.MethodPost, path: "/api/rollouts",
			body:   `{"revision": "xyz", "workload": "sample-nestjs"}`,
			header: map[string]string{
				"Authorization": "Bearer " + try.To(handlers.IssueToken([]byte("s3cr3t"), "test", time.Now(), time.Hour)).OrFatal(t),
			},
		},
		http.StatusBadRequest,
	))
}
