// Package reposearch provides a client for browsing an artifact repository
// server over its REST API, and debounced search built on top of it.
//
// Basic usage:
//
//	import (
//		"context"
//		"github.com/git-pkgs/reposearch"
//	)
//
//	client := reposearch.NewClient(reposearch.WithCredentials(reposearch.BearerToken(token)))
//	srv := reposearch.New("https://artifacts.example.com", client)
//
//	page, err := srv.Search(context.Background(), "libcurl", 50)
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, item := range page.Items {
//		fmt.Println(item.Name, item.Version, item.Repository)
//	}
//
// For search-as-you-type, feed every keystroke to a search orchestrator and
// render the states it publishes:
//
//	s := reposearch.NewSearch(srv, 50)
//	defer s.Dispose()
//	s.Subscribe(func(st reposearch.SearchState) { render(st) })
//	s.Submit(input)
package reposearch

import (
	"context"

	"github.com/git-pkgs/purl"
	"github.com/git-pkgs/reposearch/client"
	"github.com/git-pkgs/reposearch/internal/api"
	"github.com/git-pkgs/reposearch/internal/core"
	"github.com/git-pkgs/reposearch/search"
)

// Re-export types from internal/core
type (
	// Server is the interface implemented by artifact repository API clients.
	Server = core.Server

	// Item is a single search hit.
	Item = core.Item

	// Page is an ordered page of search results.
	Page = core.Page

	// Repository describes a repository hosted on the server.
	Repository = core.Repository

	// PackageSummary is a package as listed inside a repository.
	PackageSummary = core.PackageSummary

	// PackagePage is a page of packages in a repository.
	PackagePage = core.PackagePage

	// Package represents package metadata.
	Package = core.Package

	// Version represents a specific version of a package.
	Version = core.Version

	// VersionStatus represents the status of a package version.
	VersionStatus = core.VersionStatus

	// Score is the security score of a package version.
	Score = core.Score

	// Vulnerabilities counts known vulnerabilities by severity.
	Vulnerabilities = core.Vulnerabilities

	// Account is the signed-in user.
	Account = core.Account

	// Ref identifies a package version in a repository.
	Ref = core.Ref

	// PackageDetail bundles package metadata, versions and score.
	PackageDetail = core.PackageDetail

	// Error is a classified remote-call failure.
	Error = core.Error

	// ErrorKind classifies a failed remote call.
	ErrorKind = core.ErrorKind
)

// Re-export types from client
type (
	// Client is an HTTP client with retry logic and per-host circuit breaking.
	Client = client.Client

	// URLBuilder constructs user-facing links for an artifact.
	URLBuilder = client.URLBuilder

	// RateLimiter controls request pacing.
	RateLimiter = client.RateLimiter

	// Credentials supplies the Authorization header for each request.
	Credentials = client.Credentials

	// Session is a token credential store that can expire.
	Session = client.Session
)

// Search orchestrator types
type (
	// Search debounces search-box input into server queries.
	Search = search.Orchestrator[*Page]

	// SearchState is what a Search publishes to its subscribers.
	SearchState = search.State[*Page]

	// DetailSearch loads package details for the selected search hit.
	DetailSearch = search.Orchestrator[*PackageDetail]

	// DetailState is what a DetailSearch publishes to its subscribers.
	DetailState = search.State[*PackageDetail]

	// Phase is the lifecycle phase of a search state.
	Phase = search.Phase

	// SearchOption configures a Search.
	SearchOption = search.Option
)

// Re-export constants
const (
	StatusNone        = core.StatusNone
	StatusYanked      = core.StatusYanked
	StatusDeprecated  = core.StatusDeprecated
	StatusQuarantined = core.StatusQuarantined

	KindNetwork      = core.KindNetwork
	KindUnauthorized = core.KindUnauthorized
	KindServer       = core.KindServer
	KindCancelled    = core.KindCancelled

	Idle            = search.Idle
	PendingDebounce = search.PendingDebounce
	InFlight        = search.InFlight
	Settled         = search.Settled
)

// Re-export errors
var (
	ErrNotFound       = client.ErrNotFound
	ErrUpstreamDown   = client.ErrUpstreamDown
	ErrReauthenticate = client.ErrReauthenticate
)

// Error types
type (
	HTTPError      = client.HTTPError
	NotFoundError  = core.NotFoundError
	RateLimitError = client.RateLimitError
)

// New creates a client for the server at baseURL.
// If c is nil, DefaultClient() is used.
func New(baseURL string, c *Client) Server {
	return api.New(baseURL, c)
}

// DefaultClient returns a client with sensible defaults:
// - 30s timeout
// - 2 retries with exponential backoff
// - Retry on 429, 5xx and transport failures
func DefaultClient() *Client {
	return client.DefaultClient()
}

// NewClient creates a new client with the given options.
func NewClient(opts ...Option) *Client {
	return client.NewClient(opts...)
}

// Option configures a Client.
type Option = client.Option

// WithTimeout sets the HTTP client timeout.
var WithTimeout = client.WithTimeout

// WithMaxRetries sets the maximum number of retries.
var WithMaxRetries = client.WithMaxRetries

// WithCredentials sets the credential store used for every request.
var WithCredentials = client.WithCredentials

// BearerToken returns credentials sending "Authorization: Bearer <token>".
func BearerToken(token string) Credentials {
	return client.BearerToken(token)
}

// BasicAuth returns credentials sending HTTP basic authentication.
func BasicAuth(username, password string) Credentials {
	return client.BasicAuth(username, password)
}

// APIKey returns credentials sending key in the named header.
func APIKey(header, key string) Credentials {
	return client.APIKey(header, key)
}

// BuildURLs returns a map of all non-empty URLs for an artifact.
// Keys are "browse", "download", and "purl".
func BuildURLs(urls URLBuilder, repo, format, name, version string) map[string]string {
	return client.BuildURLs(urls, repo, format, name, version)
}

// Classify converts a remote-call error into an *Error with a kind.
func Classify(err error) *Error {
	return core.Classify(err)
}

// PURL represents a parsed Package URL.
type PURL = purl.PURL

// ParsePURL parses a Package URL string into its components.
// Supports both package PURLs (pkg:npm/lodash) and version PURLs (pkg:npm/lodash@4.17.21).
func ParsePURL(purlStr string) (*PURL, error) {
	return purl.Parse(purlStr)
}

// FetchLatestVersion returns the latest non-yanked/deprecated/quarantined version.
// Returns nil if no valid versions exist.
func FetchLatestVersion(ctx context.Context, srv Server, repo, name string) (*Version, error) {
	return core.FetchLatestVersion(ctx, srv, repo, name)
}

// FetchPackageDetail fetches package metadata, versions and score concurrently.
func FetchPackageDetail(ctx context.Context, srv Server, ref Ref) (*PackageDetail, error) {
	return core.FetchPackageDetail(ctx, srv, ref)
}

// BulkFetchScores fetches security scores for many refs in parallel.
// Failed refs are returned in the error map rather than dropped.
func BulkFetchScores(ctx context.Context, srv Server, refs []Ref) (map[Ref]*Score, map[Ref]error) {
	return core.BulkFetchScores(ctx, srv, refs)
}

// BulkFetchScoresWithConcurrency fetches scores with a custom concurrency limit.
func BulkFetchScoresWithConcurrency(ctx context.Context, srv Server, refs []Ref, concurrency int) (map[Ref]*Score, map[Ref]error) {
	return core.BulkFetchScoresWithConcurrency(ctx, srv, refs, concurrency)
}

// NewSearch returns an idle search orchestrator that queries srv for at most
// limit items once input pauses. Call Dispose when the search box goes away.
func NewSearch(srv Server, limit int, opts ...SearchOption) *Search {
	return search.New(func(ctx context.Context, q string) (*Page, error) {
		return srv.Search(ctx, q, limit)
	}, opts...)
}

// NewDetailSearch returns an orchestrator whose queries are Ref.Key values and
// whose results are package details.
func NewDetailSearch(srv Server, opts ...SearchOption) *DetailSearch {
	return search.New(func(ctx context.Context, key string) (*PackageDetail, error) {
		return core.FetchPackageDetailByKey(ctx, srv, key)
	}, opts...)
}

// WithDebounce sets the quiet interval before a query is issued.
var WithDebounce = search.WithDebounce

// WithSearchLogger sets the logger for search lifecycle events.
var WithSearchLogger = search.WithLogger

// WithSearchMetrics records search activity in Prometheus metrics.
var WithSearchMetrics = search.WithMetrics

// NewSearchMetrics registers search metrics for one surface with reg.
var NewSearchMetrics = search.NewMetrics
