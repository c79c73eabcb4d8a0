package display

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/git-pkgs/reposearch/internal/core"
	"github.com/git-pkgs/reposearch/search"
)

// RenderState writes the line-mode rendering of a published search state.
// Idle and pending states produce no output.
func RenderState(w io.Writer, s search.State[*core.Page]) error {
	switch s.Phase {
	case search.InFlight:
		_, err := fmt.Fprintf(w, "searching %q...\n", s.Query)
		return err
	case search.Settled:
		if s.Err != nil {
			_, err := fmt.Fprintf(w, "error: %s\n", Describe(s.Err))
			return err
		}
		if s.Result.Len() == 0 {
			_, err := fmt.Fprintf(w, "no results for %q\n", s.Query)
			return err
		}
		if err := Items(w, s.Result.Items); err != nil {
			return err
		}
		return Summary(w, s.Result)
	}
	return nil
}

// Summary writes "N of M results", noting when more are available.
func Summary(w io.Writer, page *core.Page) error {
	var err error
	if page.HasMore || page.Total > page.Len() {
		_, err = fmt.Fprintf(w, "%d of %s results\n", page.Len(), humanize.Comma(int64(page.Total)))
	} else {
		_, err = fmt.Fprintf(w, "%d results\n", page.Len())
	}
	return err
}

// Items writes search hits as an aligned table, in the order given.
func Items(w io.Writer, items []core.Item) error {
	tw := newTable(w)
	_, _ = fmt.Fprintln(tw, "NAME\tVERSION\tFORMAT\tSIZE\tREPOSITORY")
	for _, it := range items {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", it.Name, dash(it.Version), it.Format, Size(it.Size), it.Repository)
	}
	return tw.Flush()
}

// Repositories writes the repository list.
func Repositories(w io.Writer, repos []core.Repository) error {
	tw := newTable(w)
	_, _ = fmt.Fprintln(tw, "KEY\tFORMAT\tTYPE\tPACKAGES\tDESCRIPTION")
	for _, r := range repos {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Key, r.Format, dash(r.Type), humanize.Comma(int64(r.PackageCount)), r.Description)
	}
	return tw.Flush()
}

// Packages writes a page of packages.
func Packages(w io.Writer, page *core.PackagePage) error {
	tw := newTable(w)
	_, _ = fmt.Fprintln(tw, "NAME\tLATEST\tFORMAT\tDESCRIPTION")
	for _, p := range page.Packages {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, dash(p.LatestVersion), p.Format, p.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if page.Total > len(page.Packages) {
		_, err := fmt.Fprintf(w, "%d of %s packages\n", len(page.Packages), humanize.Comma(int64(page.Total)))
		return err
	}
	return nil
}

// Versions writes a version list in server order.
func Versions(w io.Writer, versions []core.Version) error {
	tw := newTable(w)
	_, _ = fmt.Fprintln(tw, "VERSION\tSIZE\tPUBLISHED\tSTATUS")
	for _, v := range versions {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.Number, Size(v.Size), Date(v.PublishedAt), dash(string(v.Status)))
	}
	return tw.Flush()
}

// Score writes a security score, or a note that the version is unscanned.
func Score(w io.Writer, ref core.Ref, s *core.Score) error {
	if s == nil {
		_, err := fmt.Fprintf(w, "%s has not been scanned\n", ref)
		return err
	}
	v := s.Vulnerabilities
	_, err := fmt.Fprintf(w, "%s\nscore %s (grade %s)\nvulnerabilities: %d critical, %d high, %d medium, %d low\nscanned %s\n",
		ref, strconv.FormatFloat(s.Value, 'f', 1, 64), dash(s.Grade), v.Critical, v.High, v.Medium, v.Low, Date(s.ScannedAt))
	return err
}

// Account writes the signed-in account.
func Account(w io.Writer, a *core.Account) error {
	name := a.Username
	if a.DisplayName != "" {
		name = a.DisplayName + " (" + a.Username + ")"
	}
	if a.Email != "" {
		name += " <" + a.Email + ">"
	}
	if _, err := fmt.Fprintln(w, name); err != nil {
		return err
	}
	if !a.ExpiresAt.IsZero() {
		_, err := fmt.Fprintf(w, "session expires %s\n", Date(a.ExpiresAt))
		return err
	}
	return nil
}

// Size formats a byte count, or "-" when unknown.
func Size(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(n))
}

// Date formats a timestamp as YYYY-MM-DD, or "-" when unknown.
func Date(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.DateOnly)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
