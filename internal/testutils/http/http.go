package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type RequestOption func(req *http.Request) *http.Request

func WithContext(ctx context.Context) RequestOption {
	return func(req *http.Request) *http.Request {
		return req.WithContext(ctx)
	}
}

func WithHeader(key string, value string, values ...string) RequestOption {
	return func(req *http.Request) *http.Request {
		req.Header.Add(key, value)
		for _, v := range values {
			req.Header.Add(key, v)
		}
		return req
	}
}

// = WithHeader("Content-Type", ctyp)
func ContentType(ctyp string) RequestOption {
	return WithHeader("Content-Type", ctyp)
}

// = WithHeader("Authorization", "Bearer "+token)
func Bearer(token string) RequestOption {
	return WithHeader("Authorization", "Bearer "+token)
}

// PathParams are path parameters of echo.Context.
type PathParams map[string]string

func Get(e *echo.Echo, target string, reqopts ...RequestOption) (echo.Context, *httptest.ResponseRecorder) {
	return request(e, http.MethodGet, target, nil, reqopts...)
}

func Post(e *echo.Echo, target string, data io.Reader, reqopts ...RequestOption) (echo.Context, *httptest.ResponseRecorder) {
	return request(e, http.MethodPost, target, data, reqopts...)
}

// PostJSON posts body marshalled as JSON, with the content type.
func PostJSON(e *echo.Echo, target string, body any, reqopts ...RequestOption) (echo.Context, *httptest.ResponseRecorder) {
	data, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return request(e, http.MethodPost, target, bytes.NewReader(data), append([]RequestOption{ContentType("application/json")}, reqopts...)...)
}

// DecodeJSON reads the response body as T. It fails the test when the body is not JSON of T.
func DecodeJSON[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if ctyp := resp.Header().Get("Content-Type"); ctyp != "" && !bytes.HasPrefix([]byte(ctyp), []byte("application/json")) {
		t.Fatalf("response is not json: %s", ctyp)
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &v); err != nil {
		t.Fatalf("cannot decode response body: %v\n%s", err, resp.Body.String())
	}
	return v
}

func request(e *echo.Echo, method string, target string, data io.Reader, reqopts ...RequestOption) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, data)
	for _, opt := range reqopts {
		req = opt(req)
	}
	resp := httptest.NewRecorder()

	ctx := e.NewContext(req, resp)
	return ctx, resp
}

// SetParams sets path parameters to ctx, as a router does.
func SetParams(ctx echo.Context, params PathParams) {
	names := make([]string, 0, len(params))
	values := make([]string, 0, len(params))
	for k, v := range params {
		names = append(names, k)
		values = append(values, v)
	}
	ctx.SetParamNames(names...)
	ctx.SetParamValues(values...)
}
