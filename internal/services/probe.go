package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"asyncops/internal/operations"
	"asyncops/pkg/contracts"
)

// maxStatusBody bounds the status document read from a remote endpoint
const maxStatusBody = 1 << 20

var userAgent = contracts.UserAgent("asyncopsd")

// HTTPProbe returns a probe that GETs url and decodes the body as a
// PollResult. timeout bounds each request; zero leaves it to ctx.
func HTTPProbe(client *http.Client, url string, headers map[string]string, timeout time.Duration) operations.Probe {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) (operations.PollResult, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return operations.PollResult{}, fmt.Errorf("build status request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return operations.PollResult{}, fmt.Errorf("status request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxStatusBody))
			return operations.PollResult{}, fmt.Errorf("status endpoint returned HTTP %d", resp.StatusCode)
		}

		var result operations.PollResult
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxStatusBody)).Decode(&result); err != nil {
			return operations.PollResult{}, fmt.Errorf("decode status: %w", err)
		}
		if result.Status != "" && !result.Status.IsValid() {
			return operations.PollResult{}, fmt.Errorf("status endpoint reported unknown status %q", result.Status)
		}
		return result, nil
	}
}
