package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/swelljoe/skycast/internal/metrics"
)

// HTTPError reports a non-2xx response from an upstream API.
type HTTPError struct {
	Upstream string
	Status   int
	Body     string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s API returned status %d", e.Upstream, e.Status)
	}
	return fmt.Sprintf("%s API returned status %d: %s", e.Upstream, e.Status, e.Body)
}

// ParseError reports a response body that could not be decoded.
type ParseError struct {
	Upstream string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s API returned a malformed body: %v", e.Upstream, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// maxErrorBody bounds how much of an error response is kept for diagnostics.
const maxErrorBody = 512

// Client handles the HTTP plumbing shared by the geocoding and forecast APIs.
// Each upstream gets its own Client so that each has its own rate limit.
type Client struct {
	UserAgent  string
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Metrics    *metrics.Metrics
}

// NewClient creates a client that sends at most rps requests per second.
func NewClient(userAgent string, timeout time.Duration, rps float64, m *metrics.Metrics) *Client {
	return &Client{
		UserAgent: userAgent,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		Limiter: rate.NewLimiter(rate.Limit(rps), 1),
		Metrics: m,
	}
}

// getJSON issues one GET and decodes the body into v.
func (c *Client) getJSON(ctx context.Context, upstream, url string, v any) (err error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s rate limit wait canceled: %w", upstream, err)
		}
	}

	start := time.Now()
	defer func() {
		c.Metrics.ObserveUpstream(upstream, outcome(err), time.Since(start))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", upstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{Upstream: upstream, Status: resp.StatusCode, Body: string(body)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s read body: %w", upstream, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &ParseError{Upstream: upstream, Err: err}
	}
	return nil
}

func outcome(err error) string {
	var httpErr *HTTPError
	var parseErr *ParseError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &httpErr):
		return "http_error"
	case errors.As(err, &parseErr):
		return "parse_error"
	default:
		return "transport_error"
	}
}
