package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/git-pkgs/reposearch/internal/core"
)

var (
	ErrNoDownloadURL = errors.New("no download URL available")
	ErrNoVersion     = errors.New("no released version")
)

// ArtifactInfo contains information about a downloadable artifact.
type ArtifactInfo struct {
	Ref      core.Ref
	URL      string
	Filename string
	Digest   string // as advertised by the server, e.g. sha256:<hex>; may be empty
	Size     int64  // 0 if unknown
}

// Resolver determines download URLs for package artifacts on one server.
type Resolver struct {
	srv core.Server
}

// NewResolver creates a resolver backed by srv.
func NewResolver(srv core.Server) *Resolver {
	return &Resolver{srv: srv}
}

// Resolve returns where to download ref from and the digest to expect.
// An empty ref.Version resolves to the latest released version.
func (r *Resolver) Resolve(ctx context.Context, ref core.Ref) (*ArtifactInfo, error) {
	versions, err := r.srv.FetchVersions(ctx, ref.Repository, ref.Name)
	if err != nil {
		return nil, fmt.Errorf("fetching versions: %w", err)
	}

	var v *core.Version
	if ref.Version == "" {
		v = core.LatestVersion(versions)
		if v == nil {
			return nil, fmt.Errorf("%s: %w", ref, ErrNoVersion)
		}
		ref.Version = v.Number
	} else {
		for i := range versions {
			if versions[i].Number == ref.Version {
				v = &versions[i]
				break
			}
		}
		if v == nil {
			return nil, &core.NotFoundError{Repository: ref.Repository, Name: ref.Name, Version: ref.Version}
		}
	}

	u := r.srv.URLs().Download(ref.Repository, ref.Name, ref.Version)
	if u == "" {
		return nil, ErrNoDownloadURL
	}

	return &ArtifactInfo{
		Ref:      ref,
		URL:      u,
		Filename: filename(u, ref),
		Digest:   v.Digest,
		Size:     v.Size,
	}, nil
}

// filename uses the URL's last segment when it looks like a file name,
// otherwise <short name>-<version>.
func filename(rawURL string, ref core.Ref) string {
	if parsed, err := url.Parse(rawURL); err == nil {
		if base := path.Base(parsed.Path); strings.Contains(base, ".") && base != "." {
			return base
		}
	}
	return lastPathComponent(ref.Name) + "-" + ref.Version
}

func lastPathComponent(p string) string {
	if idx := strings.LastIndex(p, "/"); idx >= 0 {
		return p[idx+1:]
	}
	return p
}
