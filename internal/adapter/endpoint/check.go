package endpoint

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"am/internal/domain"
)

// DefaultCheckTimeout bounds a single probe.
const DefaultCheckTimeout = 5 * time.Second

// HTTPChecker probes endpoints with a GET request.
type HTTPChecker struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPChecker creates a checker. A nil client selects http.DefaultClient.
func NewHTTPChecker(client *http.Client) *HTTPChecker {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPChecker{client: client, timeout: DefaultCheckTimeout}
}

// Check returns an EndpointHealthCheckError unless ep answers with 2xx.
func (c *HTTPChecker) Check(ctx context.Context, ep domain.Endpoint) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.URL.String(), nil)
	if err != nil {
		return &domain.EndpointHealthCheckError{URL: ep.URL.String(), Err: err}
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := c.client.Do(req)
	if err != nil {
		return &domain.EndpointHealthCheckError{URL: ep.URL.String(), Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.EndpointHealthCheckError{URL: ep.URL.String(), Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	return nil
}
