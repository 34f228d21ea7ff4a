package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// httpDo issues a GET with the adapter's context and decodes the JSON
// body into v. Transport errors map to ErrUnavailable, decode errors to
// ErrBadPayload, bad statuses through statusErr.
func httpDo(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", provider, err)
	}
	for k, val := range headers {
		req.Header.Set(k, val)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %v: %w", provider, err, ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return statusErr(provider, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%s: decode: %v: %w", provider, err, ErrBadPayload)
	}
	return nil
}

// newHTTPClient builds the shared client adapters use. The per-attempt
// timeout lives on the context, not here; the client timeout is only a
// last-resort upper bound.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
