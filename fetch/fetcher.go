// Package fetch streams package artifacts from an artifact repository server
// and verifies them against the digest the server advertises.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/git-pkgs/reposearch/client"
)

// DefaultTimeout bounds a whole download, body included. Artifacts can be large.
const DefaultTimeout = 5 * time.Minute

var (
	ErrNotFound     = client.ErrNotFound
	ErrUpstreamDown = client.ErrUpstreamDown
)

// Artifact contains the response from fetching an artifact.
type Artifact struct {
	Body        io.ReadCloser
	Size        int64 // -1 if unknown
	ContentType string
	ETag        string
}

// FetcherInterface defines the interface for artifact fetchers.
type FetcherInterface interface {
	Fetch(ctx context.Context, url string) (*Artifact, error)
	Head(ctx context.Context, url string) (size int64, contentType string, err error)
}

// Fetcher downloads artifacts through a client.Client, so downloads share its
// retries, circuit breakers, DNS cache and credentials.
type Fetcher struct {
	client *client.Client
}

// NewFetcher returns a Fetcher using c. If c is nil a client with
// DefaultTimeout is created.
func NewFetcher(c *client.Client) *Fetcher {
	if c == nil {
		c = client.NewClient(client.WithTimeout(DefaultTimeout))
	}
	return &Fetcher{client: c}
}

// Fetch starts downloading the artifact at url.
// The caller must close the returned Artifact.Body when done.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Artifact, error) {
	resp, err := f.client.Open(ctx, url)
	if err != nil {
		return nil, mapError(url, err)
	}

	return &Artifact{
		Body:        resp.Body,
		Size:        resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
		ETag:        resp.Header.Get("ETag"),
	}, nil
}

// Head checks if an artifact exists and returns its metadata without downloading.
func (f *Fetcher) Head(ctx context.Context, url string) (size int64, contentType string, err error) {
	header, err := f.client.Head(ctx, url)
	if err != nil {
		return 0, "", mapError(url, err)
	}

	size = -1
	if cl := header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			size = n
		}
	}
	return size, header.Get("Content-Type"), nil
}

// mapError turns exhausted 5xx retries into ErrUpstreamDown and 404 into ErrNotFound.
func mapError(url string, err error) error {
	var httpErr *client.HTTPError
	if !errors.As(err, &httpErr) {
		return err
	}
	switch {
	case httpErr.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", url, ErrNotFound)
	case httpErr.StatusCode >= 500:
		return fmt.Errorf("%s: %w (HTTP %d)", url, ErrUpstreamDown, httpErr.StatusCode)
	}
	return err
}
