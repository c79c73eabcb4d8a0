// Package api provides the core.Server implementation for the artifact repository REST API.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/git-pkgs/reposearch/internal/core"
)

const apiPrefix = "/api/v1"

type Server struct {
	baseURL string
	client  *core.Client
	urls    *URLs
}

// New returns a Server talking to the API rooted at baseURL.
func New(baseURL string, client *core.Client) *Server {
	if client == nil {
		client = core.DefaultClient()
	}
	s := &Server{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
	}
	s.urls = &URLs{baseURL: s.baseURL}
	return s
}

func (s *Server) URLs() core.URLBuilder {
	return s.urls
}

// BaseURL returns the server root without a trailing slash.
func (s *Server) BaseURL() string {
	return s.baseURL
}

type itemJSON struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Format     string `json:"format"`
	Version    string `json:"version"`
	Size       int64  `json:"size"`
	Repository string `json:"repository"`
	UpdatedAt  string `json:"updated_at"`
}

type searchResponse struct {
	Items   []itemJSON `json:"items"`
	Total   int        `json:"total"`
	HasMore bool       `json:"has_more"`
}

// Search queries the server's search endpoint. A query that is a Package URL
// is split into name, format and version parameters.
func (s *Server) Search(ctx context.Context, query string, limit int) (*core.Page, error) {
	params := url.Values{}
	if core.IsPURL(query) {
		p, err := core.ParsePURL(strings.TrimSpace(query))
		if err != nil {
			return nil, fmt.Errorf("parsing purl: %w", err)
		}
		params.Set("q", p.FullName())
		params.Set("format", p.Type)
		if p.Version != "" {
			params.Set("version", p.Version)
		}
	} else {
		params.Set("q", query)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var resp searchResponse
	if err := s.client.GetJSON(ctx, s.endpoint("search")+"?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	page := &core.Page{
		Items:   make([]core.Item, 0, len(resp.Items)),
		Total:   resp.Total,
		HasMore: resp.HasMore,
	}
	for _, it := range resp.Items {
		page.Items = append(page.Items, core.Item{
			ID:         it.ID,
			Name:       it.Name,
			Format:     it.Format,
			Version:    it.Version,
			Size:       it.Size,
			Repository: it.Repository,
			UpdatedAt:  parseTime(it.UpdatedAt),
		})
	}
	if page.Total < len(page.Items) {
		page.Total = len(page.Items)
	}
	return page, nil
}

type repositoriesResponse struct {
	Repositories []struct {
		Key          string `json:"key"`
		Format       string `json:"format"`
		Type         string `json:"type"`
		Description  string `json:"description"`
		PackageCount int    `json:"package_count"`
	} `json:"repositories"`
}

func (s *Server) ListRepositories(ctx context.Context) ([]core.Repository, error) {
	var resp repositoriesResponse
	if err := s.client.GetJSON(ctx, s.endpoint("repositories"), &resp); err != nil {
		return nil, err
	}

	repos := make([]core.Repository, len(resp.Repositories))
	for i, r := range resp.Repositories {
		repos[i] = core.Repository{
			Key:          r.Key,
			Format:       r.Format,
			Type:         r.Type,
			Description:  r.Description,
			PackageCount: r.PackageCount,
		}
	}
	return repos, nil
}

type packageJSON struct {
	Name          string         `json:"name"`
	Format        string         `json:"format"`
	LatestVersion string         `json:"latest_version"`
	Description   string         `json:"description"`
	Homepage      string         `json:"homepage"`
	License       string         `json:"license"`
	UpdatedAt     string         `json:"updated_at"`
	Properties    map[string]any `json:"properties"`
}

type packagesResponse struct {
	Packages []packageJSON `json:"packages"`
	Total    int           `json:"total"`
}

func (s *Server) ListPackages(ctx context.Context, repo string, limit int) (*core.PackagePage, error) {
	u := s.endpoint("repositories", repo, "packages")
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}

	var resp packagesResponse
	if err := s.client.GetJSON(ctx, u, &resp); err != nil {
		if isNotFound(err) {
			return nil, &core.NotFoundError{Repository: repo}
		}
		return nil, err
	}

	page := &core.PackagePage{
		Packages: make([]core.PackageSummary, len(resp.Packages)),
		Total:    resp.Total,
	}
	for i, p := range resp.Packages {
		page.Packages[i] = core.PackageSummary{
			Name:          p.Name,
			Format:        p.Format,
			LatestVersion: p.LatestVersion,
			Description:   p.Description,
			UpdatedAt:     parseTime(p.UpdatedAt),
		}
	}
	return page, nil
}

func (s *Server) FetchPackage(ctx context.Context, repo, name string) (*core.Package, error) {
	var resp packageJSON
	if err := s.client.GetJSON(ctx, s.endpoint("repositories", repo, "packages", name), &resp); err != nil {
		if isNotFound(err) {
			return nil, &core.NotFoundError{Repository: repo, Name: name}
		}
		return nil, err
	}

	return &core.Package{
		Name:          resp.Name,
		Repository:    repo,
		Format:        resp.Format,
		Description:   resp.Description,
		Homepage:      resp.Homepage,
		Licenses:      resp.License,
		LatestVersion: resp.LatestVersion,
		Metadata:      resp.Properties,
	}, nil
}

type versionsResponse struct {
	Versions []struct {
		Version     string `json:"version"`
		Size        int64  `json:"size"`
		PublishedAt string `json:"published_at"`
		Status      string `json:"status"`
		Digest      string `json:"digest"`
	} `json:"versions"`
}

func (s *Server) FetchVersions(ctx context.Context, repo, name string) ([]core.Version, error) {
	var resp versionsResponse
	if err := s.client.GetJSON(ctx, s.endpoint("repositories", repo, "packages", name, "versions"), &resp); err != nil {
		if isNotFound(err) {
			return nil, &core.NotFoundError{Repository: repo, Name: name}
		}
		return nil, err
	}

	versions := make([]core.Version, len(resp.Versions))
	for i, v := range resp.Versions {
		versions[i] = core.Version{
			Number:      v.Version,
			Size:        v.Size,
			PublishedAt: parseTime(v.PublishedAt),
			Digest:      v.Digest,
			Status:      parseStatus(v.Status),
		}
	}
	return versions, nil
}

type scoreResponse struct {
	Score           float64 `json:"score"`
	Grade           string  `json:"grade"`
	Vulnerabilities struct {
		Critical int `json:"critical"`
		High     int `json:"high"`
		Medium   int `json:"medium"`
		Low      int `json:"low"`
	} `json:"vulnerabilities"`
	ScannedAt string `json:"scanned_at"`
}

func (s *Server) FetchScore(ctx context.Context, repo, name, version string) (*core.Score, error) {
	u := s.endpoint("repositories", repo, "packages", name, "versions", version, "score")

	var resp scoreResponse
	if err := s.client.GetJSON(ctx, u, &resp); err != nil {
		if isNotFound(err) {
			return nil, &core.NotFoundError{Repository: repo, Name: name, Version: version}
		}
		return nil, err
	}

	return &core.Score{
		Value: resp.Score,
		Grade: resp.Grade,
		Vulnerabilities: core.Vulnerabilities{
			Critical: resp.Vulnerabilities.Critical,
			High:     resp.Vulnerabilities.High,
			Medium:   resp.Vulnerabilities.Medium,
			Low:      resp.Vulnerabilities.Low,
		},
		ScannedAt: parseTime(resp.ScannedAt),
	}, nil
}

type sessionResponse struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	ExpiresAt   string `json:"expires_at"`
}

func (s *Server) FetchAccount(ctx context.Context) (*core.Account, error) {
	var resp sessionResponse
	if err := s.client.GetJSON(ctx, s.endpoint("session"), &resp); err != nil {
		return nil, err
	}
	return &core.Account{
		Username:    resp.Username,
		Email:       resp.Email,
		DisplayName: resp.DisplayName,
		ExpiresAt:   parseTime(resp.ExpiresAt),
	}, nil
}

func (s *Server) Ping(ctx context.Context) error {
	_, err := s.client.GetBody(ctx, s.endpoint("ping"))
	return err
}

// endpoint joins path segments under the API prefix, escaping each one.
// Package names such as "@babel/core" stay a single segment.
func (s *Server) endpoint(segments ...string) string {
	var b strings.Builder
	b.WriteString(s.baseURL)
	b.WriteString(apiPrefix)
	for _, seg := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(seg))
	}
	return b.String()
}

func isNotFound(err error) bool {
	var httpErr *core.HTTPError
	return errors.As(err, &httpErr) && httpErr.IsNotFound()
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseStatus(s string) core.VersionStatus {
	switch core.VersionStatus(strings.ToLower(s)) {
	case core.StatusYanked:
		return core.StatusYanked
	case core.StatusDeprecated:
		return core.StatusDeprecated
	case core.StatusQuarantined:
		return core.StatusQuarantined
	}
	return core.StatusNone
}

// URLs builds user-facing links into the server's web UI.
type URLs struct {
	baseURL string
}

func (u *URLs) Browse(repo, name, version string) string {
	link := fmt.Sprintf("%s/ui/repos/%s/packages/%s", u.baseURL, url.PathEscape(repo), url.PathEscape(name))
	if version != "" {
		link += "/" + url.PathEscape(version)
	}
	return link
}

func (u *URLs) Download(repo, name, version string) string {
	if version == "" {
		return ""
	}
	return fmt.Sprintf("%s%s/repositories/%s/packages/%s/versions/%s/download",
		u.baseURL, apiPrefix, url.PathEscape(repo), url.PathEscape(name), url.PathEscape(version))
}

func (u *URLs) PURL(format, name, version string) string {
	return core.BuildPURL(format, name, version)
}
