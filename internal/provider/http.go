package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rdavidhalljr/weekly-allocator/internal/ratelimit"
)

const maxBodyBytes = 8 << 20

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// get performs a rate-limited GET and returns the body of a 2xx reply.
// A 429 reply marks the limiter throttled.
func get(ctx context.Context, client *http.Client, limiter *ratelimit.Limiter, name, url string) ([]byte, error) {
	if err := limiter.Wait(ctx); err != nil {
		return nil, &ProviderError{Provider: name, Kind: ErrUpstreamRequest, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: name, Kind: ErrUpstreamRequest, Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		limiter.SignalRateLimited()
		return nil, &ProviderError{Provider: name, Kind: ErrUpstreamRequest, Err: fmt.Errorf("rate limited"), Retryable: true}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProviderError{
			Provider:  name,
			Kind:      ErrUpstreamRequest,
			Err:       fmt.Errorf("status %d", resp.StatusCode),
			Retryable: resp.StatusCode >= 500,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &ProviderError{Provider: name, Kind: ErrUpstreamRequest, Err: fmt.Errorf("reading body: %w", err), Retryable: true}
	}

	limiter.ResetBackoff()
	return body, nil
}

func missingKey(name, env string) error {
	return &ProviderError{Provider: name, Kind: ErrMissingCredential, Err: fmt.Errorf("%s not set", env)}
}

func shapeError(name string, err error) error {
	return &ProviderError{Provider: name, Kind: ErrUpstreamShape, Err: err}
}
