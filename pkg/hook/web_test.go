package hook_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/opst/rollout/pkg/hook"
	"github.com/opst/rollout/pkg/utils/try"
)

type Value struct {
	Revision string `json:"revision"`
}

type Resp struct {
	StatusCode  int
	ContentType string
	Content     string
}

// starts a server answering resp, and counting requests in *invoked.
func serve(t *testing.T, name string, expected Value, resp Resp, invoked *int) *url.URL {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*invoked += 1

		if r.Method != http.MethodPost {
			t.Errorf("%s: unexpected method: %s", name, r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("%s: unexpected Content-Type: %s", name, ct)
		}
		var got Value
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("%s: unexpected error: %v", name, err)
		}
		if got != expected {
			t.Errorf("%s: Expected: %v, Got: %v", name, expected, got)
		}

		if resp.ContentType != "" {
			w.Header().Set("Content-Type", resp.ContentType)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Content != "" {
			w.Write([]byte(resp.Content))
		}
	}))
	t.Cleanup(server.Close)
	return try.To(url.Parse(server.URL)).OrFatal(t)
}

func TestWebHook(t *testing.T) {
	type When struct {
		resp1 Resp
		resp2 Resp
	}
	type Then struct {
		invoked1 int
		invoked2 int
		err      error
	}

	value := Value{Revision: "9314b46bxxxx"}
	ok := Resp{StatusCode: http.StatusOK}
	ng := Resp{StatusCode: http.StatusForbidden, ContentType: "text/plain", Content: "freeze window"}

	theory := func(before bool, when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			invoked1, invoked2 := 0, 0
			urls := []*url.URL{
				serve(t, "server1", value, when.resp1, &invoked1),
				serve(t, "server2", value, when.resp2, &invoked2),
			}

			var err error
			if before {
				err = hook.Web[Value]{BeforeURL: urls}.Before(context.Background(), value)
			} else {
				err = hook.Web[Value]{AfterURL: urls}.After(context.Background(), value)
			}

			if !errors.Is(err, then.err) {
				t.Errorf("Want: %v, Got: %v", then.err, err)
			}
			if invoked1 != then.invoked1 || invoked2 != then.invoked2 {
				t.Errorf("invoked: (%d, %d), want (%d, %d)", invoked1, invoked2, then.invoked1, then.invoked2)
			}
		}
	}

	t.Run("Before: Success All", theory(true, When{resp1: ok, resp2: ok}, Then{invoked1: 1, invoked2: 1}))
	t.Run("Before: Fail First stops", theory(true, When{resp1: ng, resp2: ok}, Then{invoked1: 1, err: hook.ErrHookFailed}))
	t.Run("Before: Fail Second", theory(true, When{resp1: ok, resp2: ng}, Then{invoked1: 1, invoked2: 1, err: hook.ErrHookFailed}))
	t.Run("After: Success All", theory(false, When{resp1: ok, resp2: ok}, Then{invoked1: 1, invoked2: 1}))
	t.Run("After: Fail First continues", theory(false, When{resp1: ng, resp2: ok}, Then{invoked1: 1, invoked2: 1, err: hook.ErrHookFailed}))

	t.Run("error message carries the response body", func(t *testing.T) {
		invoked := 0
		u := serve(t, "server", value, ng, &invoked)
		err := hook.Web[Value]{BeforeURL: []*url.URL{u}}.Before(context.Background(), value)
		if err == nil || !strings.Contains(err.Error(), "freeze window") {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestWebHook_InvalidUrl(t *testing.T) {
	testee := hook.Web[string]{
		BeforeURL: []*url.URL{try.To(url.Parse("http://somewhere.invalid")).OrFatal(t)},
		AfterURL:  []*url.URL{try.To(url.Parse("http://somewhere.invalid")).OrFatal(t)},
	}

	if err := testee.Before(context.Background(), "hello"); !errors.Is(err, hook.ErrHookFailed) {
		t.Errorf("Before: %v", err)
	}
	if err := testee.After(context.Background(), "hello"); !errors.Is(err, hook.ErrHookFailed) {
		t.Errorf("After: %v", err)
	}
}

func TestNone(t *testing.T) {
	testee := hook.None[string]{}
	if err := testee.Before(context.Background(), "x"); err != nil {
		t.Error(err)
	}
	if err := testee.After(context.Background(), "x"); err != nil {
		t.Error(err)
	}
}
