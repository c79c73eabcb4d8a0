package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/git-pkgs/reposearch/client"
)

// ErrNotFound is returned when a repository, package or version is not found.
var ErrNotFound = client.ErrNotFound

// NotFoundError wraps ErrNotFound with additional context.
type NotFoundError struct {
	Repository string
	Name       string
	Version    string
}

func (e *NotFoundError) Error() string {
	switch {
	case e.Name == "":
		return fmt.Sprintf("repository %s not found", e.Repository)
	case e.Version != "":
		return fmt.Sprintf("%s: package %s version %s not found", e.Repository, e.Name, e.Version)
	default:
		return fmt.Sprintf("%s: package %s not found", e.Repository, e.Name)
	}
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ErrorKind classifies a failed remote call for the display layer.
type ErrorKind string

const (
	KindNetwork      ErrorKind = "network"
	KindUnauthorized ErrorKind = "unauthorized"
	KindServer       ErrorKind = "server"
	KindCancelled    ErrorKind = "cancelled" // never shown to users
)

// Error is a classified remote-call failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify converts err into an *Error. It returns nil for a nil error.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	kind, msg := classify(err)
	return &Error{Kind: kind, Message: msg, Err: err}
}

func classify(err error) (ErrorKind, string) {
	if errors.Is(err, context.Canceled) {
		return KindCancelled, "request cancelled"
	}
	if errors.Is(err, client.ErrReauthenticate) {
		return KindUnauthorized, "session expired, sign in again"
	}

	var httpErr *client.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.IsUnauthorized() {
			if httpErr.Message != "" {
				return KindUnauthorized, httpErr.Message
			}
			return KindUnauthorized, "credentials rejected by server"
		}
		if httpErr.Message != "" {
			return KindServer, httpErr.Message
		}
		return KindServer, fmt.Sprintf("server returned HTTP %d", httpErr.StatusCode)
	}

	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		return KindServer, notFound.Error()
	}

	var rateLimited *client.RateLimitError
	if errors.As(err, &rateLimited) {
		return KindServer, rateLimited.Error()
	}

	var decodeErr *client.DecodeError
	if errors.As(err, &decodeErr) {
		return KindServer, "invalid response from server"
	}

	if errors.Is(err, client.ErrUpstreamDown) {
		return KindNetwork, "server unavailable, try again later"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork, "request timed out"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork, err.Error()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindNetwork, err.Error()
	}

	return KindServer, err.Error()
}
