package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a repository, package or version is not found.
	ErrNotFound = errors.New("not found")

	// ErrUpstreamDown is returned while a host's circuit breaker is open.
	ErrUpstreamDown = errors.New("upstream server unavailable")

	// ErrReauthenticate is returned by a Credentials store whose session is
	// invalid or expired. Requests are not sent while it is returned.
	ErrReauthenticate = errors.New("credentials expired, sign in again")
)

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
	Message    string // server-supplied message, if the body carried one
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s: %s", e.StatusCode, e.URL, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// IsNotFound returns true if the error represents a 404 response.
func (e *HTTPError) IsNotFound() bool {
	return e.StatusCode == 404
}

// IsUnauthorized returns true if the server rejected the request's credentials.
func (e *HTTPError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// RateLimitError is returned when the server rate limits requests.
type RateLimitError struct {
	RetryAfter int // seconds
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %d seconds", e.RetryAfter)
}

// DecodeError is returned when a response body is not the expected JSON.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding response from %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
