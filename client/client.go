// Package client provides the HTTP client used to talk to artifact repository servers.
//
// The client retries rate-limited and failing requests with exponential backoff,
// isolates unhealthy hosts behind circuit breakers, caches DNS lookups, and attaches
// credentials from a Credentials store to every request.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenk/backoff"
	"github.com/google/uuid"
)

const maxErrorBody = 4096

const (
	acceptJSON = "application/json"
	acceptAny  = "*/*"
)

// RateLimiter controls request pacing.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// Client is an HTTP client with retry logic for artifact repository APIs.
type Client struct {
	HTTPClient  *http.Client
	UserAgent   string
	MaxRetries  int
	BaseDelay   time.Duration
	RateLimiter RateLimiter

	credentials Credentials
	breakers    *breakerSet
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.HTTPClient.Timeout = d
	}
}

// WithMaxRetries sets the maximum number of retries.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.MaxRetries = n
	}
}

// WithBaseDelay sets the initial backoff interval between retries.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		c.BaseDelay = d
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.HTTPClient = hc
	}
}

// WithCredentials sets the store that supplies the authorization header.
func WithCredentials(creds Credentials) Option {
	return func(c *Client) {
		c.credentials = creds
	}
}

// WithRateLimiter sets a limiter consulted before every attempt.
func WithRateLimiter(rl RateLimiter) Option {
	return func(c *Client) {
		c.RateLimiter = rl
	}
}

// DefaultClient returns a client with sensible defaults:
// - 30s timeout
// - 2 retries with exponential backoff
// - Retry on 429, 5xx and transport failures
func DefaultClient() *Client {
	return NewClient()
}

// NewClient creates a new client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		HTTPClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: newTransport(),
		},
		UserAgent:  "reposearch",
		MaxRetries: 2,
		BaseDelay:  250 * time.Millisecond,
		breakers:   newBreakerSet(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithUserAgent returns a copy of the client that sends the given User-Agent.
func (c *Client) WithUserAgent(ua string) *Client {
	cp := *c
	cp.UserAgent = ua
	return &cp
}

// Credentials returns the configured credential store, or nil.
func (c *Client) Credentials() Credentials {
	return c.credentials
}

// GetJSON fetches url and decodes the JSON response body into v.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	body, err := c.GetBody(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &DecodeError{URL: url, Err: err}
	}
	return nil
}

// GetBody fetches url and returns the response body.
func (c *Client) GetBody(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, url, acceptJSON)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}

// Open issues a GET and returns the successful response with its body unread,
// for callers that stream large payloads. It accepts any content type.
// The caller must close the body.
func (c *Client) Open(ctx context.Context, url string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, url, acceptAny)
}

// Head issues a HEAD request and returns the response headers.
func (c *Client) Head(ctx context.Context, url string) (http.Header, error) {
	resp, err := c.do(ctx, http.MethodHead, url, acceptAny)
	if err != nil {
		return nil, err
	}
	_ = resp.Body.Close()
	return resp.Header, nil
}

// BreakerStates returns "open" or "closed" for every host the client has contacted.
func (c *Client) BreakerStates() map[string]string {
	return c.breakers.states()
}

// do runs the request with retries. The returned response always has a 2xx status.
func (c *Client) do(ctx context.Context, method, url, accept string) (*http.Response, error) {
	host := hostOf(url)
	breaker := c.breakers.get(host)

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.BaseDelay
	exp.MaxElapsedTime = 0
	exp.Reset()
	// WithMaxRetries treats 0 as unlimited.
	var b backoff.BackOff = &backoff.StopBackOff{}
	if c.MaxRetries > 0 {
		b = backoff.WithMaxRetries(exp, uint64(c.MaxRetries))
	}

	for {
		if !breaker.Ready() {
			return nil, fmt.Errorf("circuit breaker open for %s: %w", host, ErrUpstreamDown)
		}

		resp, err := c.attempt(ctx, method, url, accept)
		if err == nil {
			breaker.Success()
			return resp, nil
		}
		if countsAgainstBreaker(err) {
			breaker.Fail()
		}
		if !retryable(err) {
			return nil, err
		}

		next := b.NextBackOff()
		if next == backoff.Stop {
			return nil, err
		}
		var rl *RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			next = time.Duration(rl.RetryAfter) * time.Second
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(next):
		}
	}
}

func (c *Client) attempt(ctx context.Context, method, url, accept string) (*http.Response, error) {
	if c.RateLimiter != nil {
		if err := c.RateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("X-Request-Id", uuid.NewString())

	if c.credentials != nil {
		name, value, err := c.credentials.Authorization(ctx)
		if err != nil {
			return nil, err
		}
		if name != "" && value != "" {
			req.Header.Set(name, value)
		}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return nil, &RateLimitError{RetryAfter: retryAfter}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if inv, ok := c.credentials.(Invalidator); ok {
			inv.Invalidate()
		}
	}

	return nil, &HTTPError{
		StatusCode: resp.StatusCode,
		URL:        url,
		Body:       string(body),
		Message:    errorMessage(body),
	}
}

// retryable reports whether a failed attempt should be retried.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrReauthenticate) {
		return false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}
	return true
}

// countsAgainstBreaker reports whether a failed attempt indicates an unhealthy
// host: a 5xx or a transport failure. Rate limiting means the host is healthy.
func countsAgainstBreaker(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrReauthenticate) {
		return false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}
	return true
}

// errorMessage extracts a human-readable message from a JSON error body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Errors  []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	switch {
	case payload.Message != "":
		return payload.Message
	case len(payload.Errors) > 0:
		return payload.Errors[0].Message
	default:
		return payload.Error
	}
}
