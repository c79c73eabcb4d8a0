package reposearch_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/git-pkgs/reposearch"
)

func newServer(t *testing.T) reposearch.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/search":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{
					{"id": "1", "name": r.URL.Query().Get("q"), "format": "npm", "version": "1.0.0", "repository": "npm-local"},
				},
				"total": 1,
			})
		case "/api/v1/repositories/npm-local/packages/lodash":
			_ = json.NewEncoder(w).Encode(map[string]any{"name": "lodash", "format": "npm", "license": "MIT"})
		case "/api/v1/repositories/npm-local/packages/lodash/versions":
			_ = json.NewEncoder(w).Encode(map[string]any{"versions": []map[string]any{{"version": "4.17.21"}}})
		default:
			w.WriteHeader(404)
		}
	}))
	t.Cleanup(server.Close)
	return reposearch.New(server.URL, reposearch.NewClient(reposearch.WithMaxRetries(0)))
}

func TestIntegration(t *testing.T) {
	srv := newServer(t)

	page, err := srv.Search(context.Background(), "lodash", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if page.Len() != 1 || page.Items[0].Name != "lodash" {
		t.Fatalf("unexpected page: %+v", page)
	}

	// Unscanned versions are not an error.
	detail, err := reposearch.FetchPackageDetail(context.Background(), srv, reposearch.Ref{Repository: "npm-local", Name: "lodash"})
	if err != nil {
		t.Fatalf("FetchPackageDetail failed: %v", err)
	}
	if detail.Ref.Version != "4.17.21" {
		t.Errorf("expected latest version to be resolved, got %q", detail.Ref.Version)
	}
	if detail.Score != nil {
		t.Errorf("expected nil score, got %+v", detail.Score)
	}

	_, err = srv.FetchPackage(context.Background(), "npm-local", "missing")
	if !errors.Is(err, reposearch.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	urls := srv.URLs()
	if got := urls.PURL("npm", "lodash", "4.17.21"); got != "pkg:npm/lodash@4.17.21" {
		t.Errorf("unexpected PURL: %q", got)
	}
}

func TestNewSearch(t *testing.T) {
	srv := newServer(t)
	s := reposearch.NewSearch(srv, 10, reposearch.WithDebounce(10*time.Millisecond))
	defer s.Dispose()

	settled := make(chan reposearch.SearchState, 1)
	s.Subscribe(func(st reposearch.SearchState) {
		if st.Phase == reposearch.Settled {
			settled <- st
		}
	})

	s.Submit("lib")
	s.Submit("libcurl")

	select {
	case st := <-settled:
		if st.Query != "libcurl" {
			t.Errorf("Query = %q, want libcurl", st.Query)
		}
		if st.Err != nil {
			t.Fatalf("unexpected error: %v", st.Err)
		}
		if st.Result.Items[0].Name != "libcurl" {
			t.Errorf("unexpected result: %+v", st.Result.Items)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("search never settled")
	}
}

func TestNewDetailSearch(t *testing.T) {
	srv := newServer(t)
	d := reposearch.NewDetailSearch(srv, reposearch.WithDebounce(time.Millisecond))
	defer d.Dispose()

	settled := make(chan reposearch.DetailState, 1)
	d.Subscribe(func(st reposearch.DetailState) {
		if st.Phase == reposearch.Settled {
			settled <- st
		}
	})

	d.Submit(reposearch.Ref{Repository: "npm-local", Name: "lodash", Version: "4.17.21"}.Key())

	select {
	case st := <-settled:
		if st.Err != nil {
			t.Fatalf("unexpected error: %v", st.Err)
		}
		if st.Result.Package.Licenses != "MIT" {
			t.Errorf("Licenses = %q, want MIT", st.Result.Package.Licenses)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("detail never settled")
	}
}

func TestNewDetailSearch_LatestVersion(t *testing.T) {
	srv := newServer(t)
	d := reposearch.NewDetailSearch(srv, reposearch.WithDebounce(time.Millisecond))
	defer d.Dispose()

	settled := make(chan reposearch.DetailState, 1)
	d.Subscribe(func(st reposearch.DetailState) {
		if st.Phase == reposearch.Settled {
			settled <- st
		}
	})

	d.Submit(reposearch.Ref{Repository: "npm-local", Name: "lodash"}.Key())

	select {
	case st := <-settled:
		if st.Err != nil {
			t.Fatalf("unexpected error: %v", st.Err)
		}
		if st.Result.Ref.Version != "4.17.21" {
			t.Errorf("Ref.Version = %q, want latest 4.17.21", st.Result.Ref.Version)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("detail never settled")
	}
}

func TestParsePURL(t *testing.T) {
	p, err := reposearch.ParsePURL("pkg:npm/lodash@4.17.21")
	if err != nil {
		t.Fatalf("ParsePURL failed: %v", err)
	}
	if p.Type != "npm" || p.Name != "lodash" || p.Version != "4.17.21" {
		t.Errorf("ParsePURL = %s/%s@%s, want npm/lodash@4.17.21", p.Type, p.Name, p.Version)
	}

	if _, err := reposearch.ParsePURL("not a purl"); err == nil {
		t.Error("expected error for malformed purl")
	}
}

func TestClassify(t *testing.T) {
	if got := reposearch.Classify(context.Canceled).Kind; got != reposearch.KindCancelled {
		t.Errorf("Kind = %q, want %q", got, reposearch.KindCancelled)
	}
	if got := reposearch.Classify(reposearch.ErrUpstreamDown).Kind; got != reposearch.KindNetwork {
		t.Errorf("Kind = %q, want %q", got, reposearch.KindNetwork)
	}
	if reposearch.Classify(nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
}

func TestConstants(t *testing.T) {
	if reposearch.StatusYanked != "yanked" {
		t.Errorf("StatusYanked constant mismatch")
	}
	if reposearch.Settled.String() != "settled" {
		t.Errorf("Settled.String() = %q", reposearch.Settled.String())
	}
}
