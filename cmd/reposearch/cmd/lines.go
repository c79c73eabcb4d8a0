package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/git-pkgs/reposearch/internal/core"
	"github.com/git-pkgs/reposearch/internal/display"
	"github.com/git-pkgs/reposearch/internal/tui"
	"github.com/git-pkgs/reposearch/search"
)

// runLines submits every line read from in to results and prints each
// published state to out. It returns once input has ended and the state left
// by the last line has been printed.
func runLines(ctx context.Context, in io.Reader, out io.Writer, results *tui.Results) error {
	states := make(chan search.State[*core.Page], 16)
	done := make(chan struct{})
	defer close(done)

	unsubscribe := results.Subscribe(func(s search.State[*core.Page]) {
		select {
		case states <- s:
		case <-done:
		}
	})
	defer unsubscribe()

	eof := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			results.Submit(scanner.Text())
		}
		eof <- scanner.Err()
	}()

	var (
		last      search.State[*core.Page]
		printed   bool
		inputDone bool
	)
	for {
		select {
		case s := <-states:
			if err := display.RenderState(out, s); err != nil {
				return err
			}
			last, printed = s, true
			if inputDone && finished(results.State(), last, printed) {
				return nil
			}

		case err := <-eof:
			if err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			inputDone = true
			eof = nil
			if finished(results.State(), last, printed) {
				return nil
			}

		case <-ctx.Done():
			return nil
		}
	}
}

// finished reports whether cur is a resting state that has already been printed.
// With no input at all the orchestrator never left Idle and there is nothing to wait for.
func finished(cur, last search.State[*core.Page], printed bool) bool {
	if cur.Phase != search.Settled && cur.Phase != search.Idle {
		return false
	}
	if !printed {
		return cur.Phase == search.Idle
	}
	return last.Phase == cur.Phase && last.Token == cur.Token && last.Query == cur.Query
}
