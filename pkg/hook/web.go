package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Web is a webhook for before/after hooks.
type Web[T any] struct {
	// BeforeURL is a list of URLs to call before processing the value T.
	//
	// The value T is sent as a JSON payload for each URL.
	//
	// If and only if all of the URLs return a 2xx status code, the hook proceeds.
	// Otherwise, the hook fails.
	BeforeURL []*url.URL

	// AfterURL is a list of URLs to call after processing the value T.
	//
	// The value T is sent as a JSON payload for each URL.
	// All URLs are called even if some of them fail.
	AfterURL []*url.URL

	// Client sends requests. http.DefaultClient is used when nil.
	Client *http.Client
}

func (w Web[T]) client() *http.Client {
	if w.Client == nil {
		return http.DefaultClient
	}
	return w.Client
}

func (w Web[T]) sendRequest(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Join(err, ErrHookFailed)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client().Do(req)
	if err != nil {
		return errors.Join(err, ErrHookFailed)
	}
	defer resp.Body.Close()

	if 200 <= resp.StatusCode && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	ctype := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ctype, "text/") && !(strings.HasPrefix(ctype, "application/") && strings.Contains(ctype, "json")) {
		return fmt.Errorf(
			"%w (%s %d, Content-Type: %s)",
			ErrHookFailed, url, resp.StatusCode, ctype,
		)
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf(
		"%w (%s %d, Content-Type: %s): %s",
		ErrHookFailed, url, resp.StatusCode, ctype, string(body),
	)
}

func (w Web[T]) Before(ctx context.Context, value T) error {
	if len(w.BeforeURL) == 0 {
		return nil
	}
	buf, err := json.Marshal(value)
	if err != nil {
		return err
	}

	for _, u := range w.BeforeURL {
		if err := w.sendRequest(ctx, u.String(), buf); err != nil {
			return err
		}
	}
	return nil
}

func (w Web[T]) After(ctx context.Context, value T) error {
	if len(w.AfterURL) == 0 {
		return nil
	}
	buf, err := json.Marshal(value)
	if err != nil {
		return err
	}

	errs := []error{}
	for _, u := range w.AfterURL {
		if err := w.sendRequest(ctx, u.String(), buf); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
