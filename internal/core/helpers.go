package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 8

// FetchLatestVersion returns the latest non-yanked/deprecated/quarantined version.
// Returns nil if no valid versions exist.
func FetchLatestVersion(ctx context.Context, srv Server, repo, name string) (*Version, error) {
	versions, err := srv.FetchVersions(ctx, repo, name)
	if err != nil {
		return nil, err
	}
	return LatestVersion(versions), nil
}

// LatestVersion picks the newest version with no status from versions.
// If no version carries a timestamp the server order is trusted.
func LatestVersion(versions []Version) *Version {
	var valid []Version
	for _, v := range versions {
		if v.Status == StatusNone {
			valid = append(valid, v)
		}
	}

	if len(valid) == 0 {
		return nil
	}

	hasTimestamps := false
	for _, v := range valid {
		if !v.PublishedAt.IsZero() {
			hasTimestamps = true
			break
		}
	}

	if hasTimestamps {
		sort.SliceStable(valid, func(i, j int) bool {
			return valid[i].PublishedAt.After(valid[j].PublishedAt)
		})
	}

	return &valid[0]
}

// FetchPackageDetail fetches package metadata, its versions and the security
// score of ref.Version concurrently. If ref.Version is empty the latest version
// is scored. A version that has not been scanned yields a nil Score, not an error.
func FetchPackageDetail(ctx context.Context, srv Server, ref Ref) (*PackageDetail, error) {
	detail := &PackageDetail{Ref: ref}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pkg, err := srv.FetchPackage(gctx, ref.Repository, ref.Name)
		if err != nil {
			return err
		}
		detail.Package = pkg
		return nil
	})
	g.Go(func() error {
		versions, err := srv.FetchVersions(gctx, ref.Repository, ref.Name)
		if err != nil {
			return err
		}
		detail.Versions = versions
		return nil
	})
	if ref.Version != "" {
		g.Go(func() error {
			score, err := fetchScore(gctx, srv, ref)
			detail.Score = score
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if ref.Version == "" {
		latest := LatestVersion(detail.Versions)
		if latest == nil {
			return detail, nil
		}
		detail.Ref.Version = latest.Number
		score, err := fetchScore(ctx, srv, detail.Ref)
		if err != nil {
			return nil, err
		}
		detail.Score = score
	}

	return detail, nil
}

// FetchPackageDetailByKey is FetchPackageDetail for a key produced by Ref.Key.
func FetchPackageDetailByKey(ctx context.Context, srv Server, key string) (*PackageDetail, error) {
	ref, ok := ParseRef(key)
	if !ok {
		return nil, fmt.Errorf("invalid package reference %q", key)
	}
	return FetchPackageDetail(ctx, srv, ref)
}

func fetchScore(ctx context.Context, srv Server, ref Ref) (*Score, error) {
	score, err := srv.FetchScore(ctx, ref.Repository, ref.Name, ref.Version)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return score, err
}

// BulkFetchScores fetches security scores for many refs in parallel.
// Returns the scores that were found and the errors for the refs that failed,
// both keyed by ref. Unscanned versions appear in neither map.
func BulkFetchScores(ctx context.Context, srv Server, refs []Ref) (map[Ref]*Score, map[Ref]error) {
	return BulkFetchScoresWithConcurrency(ctx, srv, refs, defaultConcurrency)
}

// BulkFetchScoresWithConcurrency fetches scores with a custom concurrency limit.
func BulkFetchScoresWithConcurrency(ctx context.Context, srv Server, refs []Ref, concurrency int) (map[Ref]*Score, map[Ref]error) {
	scores := make(map[Ref]*Score)
	failures := make(map[Ref]error)
	var mu sync.Mutex

	var g errgroup.Group
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for _, ref := range refs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				failures[ref] = err
				mu.Unlock()
				return nil
			}

			score, err := fetchScore(ctx, srv, ref)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				failures[ref] = err
			case score != nil:
				scores[ref] = score
			}
			return nil
		})
	}

	_ = g.Wait()
	return scores, failures
}
