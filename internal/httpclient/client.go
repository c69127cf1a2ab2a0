package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultRetryCount = 3
	DefaultRetryBase  = time.Second
)

// Client wraps an http.Client to provide rate limiting and automatic retries
// on 429 and 503 responses and transport errors.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	retries    int
	retryBase  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithRetries sets the number of attempts and the linear backoff base.
func WithRetries(attempts int, base time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.retries = attempts
		}
		c.retryBase = base
	}
}

// NewClient creates a new rate-limited, retrying HTTP client. A zero
// requestsPerSecond disables rate limiting.
func NewClient(httpClient *http.Client, requestsPerSecond float64, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		}
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	c := &Client{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		retries:    DefaultRetryCount,
		retryBase:  DefaultRetryBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do executes an HTTP request with rate-limiting and retries. Requests with
// a body are only retried when they carry GetBody.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		if attempt > 0 && req.Body != nil {
			if req.GetBody == nil {
				return nil, lastErr
			}
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			req.Body = body
		}

		resp, err := c.httpClient.Do(req.WithContext(ctx))
		backoffWait := time.Duration(attempt+1) * c.retryBase
		switch {
		case err != nil:
			lastErr = err
		case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests:
			if retryAfter := parseRetryAfter(resp); retryAfter > backoffWait {
				backoffWait = retryAfter
			}
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("rate limited (status %d)", resp.StatusCode)
		default:
			return resp, nil
		}

		if attempt == c.retries-1 {
			break
		}
		backoffTimer := time.NewTimer(backoffWait)
		select {
		case <-ctx.Done():
			backoffTimer.Stop()
			return nil, ctx.Err()
		case <-backoffTimer.C:
		}
	}
	return nil, lastErr
}

// GetUnderlyingClient returns the underlying *http.Client.
func (c *Client) GetUnderlyingClient() *http.Client {
	return c.httpClient
}

// parseRetryAfter reads a Retry-After header and returns the duration to wait.
func parseRetryAfter(resp *http.Response) time.Duration {
	ra := resp.Header.Get("Retry-After")
	if ra == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(ra); err == nil {
		return time.Until(t)
	}
	return 0
}
