package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/git-pkgs/reposearch/internal/core"
	"github.com/git-pkgs/reposearch/internal/display"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit  int
	format string // "text", "json"
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search packages once and print the results",
		Long: `Search packages on the server and print one page of results.

A query starting with "pkg:" is treated as a Package URL and matched on
name, format and version.

Examples:
  reposearch search libcurl
  reposearch search lodash --limit 5
  reposearch search pkg:npm/%40babel/core@7.24.0 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, root, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default page_size from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(cmd *cobra.Command, root *rootOptions, query string, opts searchOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("invalid format %q (use text or json)", opts.format)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return errors.New("query must not be empty")
	}

	srv, err := root.newServer()
	if err != nil {
		return err
	}
	limit := opts.limit
	if limit <= 0 {
		limit = root.cfg.PageSize
	}

	start := time.Now()
	page, err := srv.Search(cmd.Context(), query, limit)
	if err != nil {
		return describe(err)
	}
	slog.Debug("search_completed",
		slog.String("query", query),
		slog.Int("results", page.Len()),
		slog.Duration("took", time.Since(start)))

	out := cmd.OutOrStdout()
	if opts.format == "json" {
		return writeSearchJSON(out, query, page)
	}
	if page.Len() == 0 {
		_, err := fmt.Fprintf(out, "no results for %q\n", query)
		return err
	}
	if err := display.Items(out, page.Items); err != nil {
		return err
	}
	return display.Summary(out, page)
}

type searchItemJSON struct {
	Name       string     `json:"name"`
	Version    string     `json:"version,omitempty"`
	Format     string     `json:"format"`
	Size       int64      `json:"size"`
	Repository string     `json:"repository"`
	PURL       string     `json:"purl"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

type searchJSON struct {
	Query   string           `json:"query"`
	Items   []searchItemJSON `json:"items"`
	Total   int              `json:"total"`
	HasMore bool             `json:"has_more"`
}

func writeSearchJSON(w io.Writer, query string, page *core.Page) error {
	resp := searchJSON{
		Query:   query,
		Items:   make([]searchItemJSON, 0, page.Len()),
		Total:   page.Total,
		HasMore: page.HasMore,
	}
	for _, it := range page.Items {
		item := searchItemJSON{
			Name:       it.Name,
			Version:    it.Version,
			Format:     it.Format,
			Size:       it.Size,
			Repository: it.Repository,
			PURL:       it.PURL(),
		}
		if !it.UpdatedAt.IsZero() {
			t := it.UpdatedAt
			item.UpdatedAt = &t
		}
		resp.Items = append(resp.Items, item)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// describe turns a remote-call failure into the message users see.
func describe(err error) error {
	if msg := display.Describe(core.Classify(err)); msg != "" {
		return errors.New(msg)
	}
	return err
}
