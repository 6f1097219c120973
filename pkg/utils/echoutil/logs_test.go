package echoutil_test

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/opst/rollout/pkg/utils/echoutil"
)

func TestParseLevel(t *testing.T) {
	for input, expected := range map[string]log.Lvl{
		"debug": log.DEBUG,
		"INFO":  log.INFO,
		"warn":  log.WARN,
		"":      log.WARN,
		"error": log.ERROR,
		"off":   log.OFF,
	} {
		t.Run(input, func(t *testing.T) {
			actual, ok := echoutil.ParseLevel(input)
			if !ok || actual != expected {
				t.Errorf("(actual, expected) = (%v, %v) (known: %v)", actual, expected, ok)
			}
		})
	}

	t.Run("unknown", func(t *testing.T) {
		actual, ok := echoutil.ParseLevel("verbose")
		if ok || actual != log.WARN {
			t.Errorf("unexpected: %v, %v", actual, ok)
		}
	})
}

func TestLogHandlerFunc(t *testing.T) {
	theory := func(handler echo.HandlerFunc, expected []string) func(*testing.T) {
		return func(t *testing.T) {
			buf := new(bytes.Buffer)
			e := echo.New()
			e.Logger.SetOutput(buf)
			echoutil.SetLevel(e, "info")

			req := httptest.NewRequest(http.MethodGet, "/api/rollouts/default/sample-nestjs/", nil)
			resp := httptest.NewRecorder()
			c := e.NewContext(req, resp)

			_ = echoutil.LogHandlerFunc(handler)(c)

			out := buf.String()
			for _, s := range expected {
				if !strings.Contains(out, s) {
					t.Errorf("%s is not logged: %s", s, out)
				}
			}
		}
	}

	t.Run("successful response", theory(
		func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		[]string{`"message":"response"`, `"status":204`, `"path":"/api/rollouts/default/sample-nestjs/"`},
	))

	t.Run("error", theory(
		func(c echo.Context) error { return errors.New("boom") },
		[]string{`"message":"response"`, `"error":"boom"`},
	))
}
