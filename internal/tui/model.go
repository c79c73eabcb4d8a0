// Package tui is the interactive search screen.
//
// Typing feeds a results orchestrator; moving the selection feeds a second,
// faster orchestrator that loads versions and the security score of the
// highlighted package. Both publish into the bubbletea program as messages.
package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/git-pkgs/reposearch/internal/core"
	"github.com/git-pkgs/reposearch/internal/display"
	"github.com/git-pkgs/reposearch/search"
)

// DetailDebounce is the quiet interval before the detail pane loads.
const DetailDebounce = 150 * time.Millisecond

const maxDetailVersions = 5

type (
	Results = search.Orchestrator[*core.Page]
	Detail  = search.Orchestrator[*core.PackageDetail]
)

// NewDetail returns an orchestrator whose queries are core.Ref keys.
func NewDetail(srv core.Server, opts ...search.Option) *Detail {
	opts = append([]search.Option{search.WithDebounce(DetailDebounce)}, opts...)
	return search.New(func(ctx context.Context, key string) (*core.PackageDetail, error) {
		return core.FetchPackageDetailByKey(ctx, srv, key)
	}, opts...)
}

type resultsMsg search.State[*core.Page]

type detailMsg search.State[*core.PackageDetail]

// Model is the bubbletea model for the search screen.
type Model struct {
	results *Results
	detail  *Detail
	urls    core.URLBuilder

	input   textinput.Model
	spinner spinner.Model
	styles  Styles

	resultState search.State[*core.Page]
	detailState search.State[*core.PackageDetail]
	cursor      int
	width       int
	height      int
	quitting    bool
}

// New builds the model. urls may be nil.
func New(results *Results, detail *Detail, urls core.URLBuilder) *Model {
	input := textinput.New()
	input.Placeholder = "search packages or paste a pkg: URL"
	input.Prompt = "> "
	input.CharLimit = 256
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	styles := DefaultStyles()
	if os.Getenv("NO_COLOR") != "" {
		styles = NoColorStyles()
	}
	input.PromptStyle = styles.Prompt

	return &Model{
		results: results,
		detail:  detail,
		urls:    urls,
		input:   input,
		spinner: sp,
		styles:  styles,
		width:   80,
		height:  24,
	}
}

// Run starts the program and blocks until the user quits. Both orchestrators
// are disposed on return.
func Run(ctx context.Context, m *Model, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(m, opts...)

	stopResults := m.results.Subscribe(func(s search.State[*core.Page]) { p.Send(resultsMsg(s)) })
	stopDetail := m.detail.Subscribe(func(s search.State[*core.PackageDetail]) { p.Send(detailMsg(s)) })
	defer func() {
		stopResults()
		stopDetail()
		m.results.Dispose()
		m.detail.Dispose()
	}()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 4
		return m, nil

	case resultsMsg:
		m.onResults(search.State[*core.Page](msg))
		return m, nil

	case detailMsg:
		m.detailState = search.State[*core.PackageDetail](msg)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "up", "ctrl+p":
		m.moveCursor(-1)
		return m, nil
	case "down", "ctrl+n":
		m.moveCursor(1)
		return m, nil
	case "ctrl+r":
		// Retry is always a fresh submit of the same text.
		m.results.Submit(m.input.Value())
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != before {
		m.results.Submit(m.input.Value())
	}
	return m, cmd
}

func (m *Model) onResults(s search.State[*core.Page]) {
	m.resultState = s
	m.cursor = 0
	if s.Phase == search.Settled && s.Err == nil && s.Result.Len() > 0 {
		m.selectCurrent()
		return
	}
	m.detail.Submit("")
}

func (m *Model) moveCursor(delta int) {
	n := m.items()
	if len(n) == 0 {
		return
	}
	next := m.cursor + delta
	if next < 0 || next >= len(n) {
		return
	}
	m.cursor = next
	m.selectCurrent()
}

func (m *Model) selectCurrent() {
	items := m.items()
	if m.cursor < len(items) {
		m.detail.Submit(items[m.cursor].Ref().Key())
	}
}

// items returns the settled result items, or nil.
func (m *Model) items() []core.Item {
	if m.resultState.Phase != search.Settled || m.resultState.Result == nil {
		return nil
	}
	return m.resultState.Result.Items
}

// Selected returns the highlighted item, if any.
func (m *Model) Selected() (core.Item, bool) {
	items := m.items()
	if m.cursor < len(items) {
		return items[m.cursor], true
	}
	return core.Item{}, false
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	sections := []string{m.input.View(), m.renderResults()}
	if d := m.renderDetail(); d != "" {
		sections = append(sections, d)
	}
	sections = append(sections, m.styles.Help.Render("↑/↓ select • ctrl+r retry • esc quit"))
	return strings.Join(sections, "\n")
}

func (m *Model) renderResults() string {
	s := m.resultState
	switch s.Phase {
	case search.Idle:
		return m.styles.Status.Render("Type to search.")
	case search.PendingDebounce, search.InFlight:
		return m.spinner.View() + m.styles.Status.Render(fmt.Sprintf(" Searching %q...", s.Query))
	}

	if s.Err != nil {
		return m.styles.Error.Render(display.Describe(s.Err)) + "\n" + m.styles.Help.Render("ctrl+r to retry")
	}
	if s.Result.Len() == 0 {
		return m.styles.Status.Render(fmt.Sprintf("No results for %q.", s.Query))
	}

	rows := m.height - 12
	if rows < 5 {
		rows = 5
	}
	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}

	var b strings.Builder
	items := s.Result.Items
	for i := start; i < len(items) && i < start+rows; i++ {
		it := items[i]
		name := m.styles.Item.Render(it.Name)
		marker := "  "
		if i == m.cursor {
			name = m.styles.Selected.Render(it.Name)
			marker = m.styles.Selected.Render("› ")
		}
		meta := m.styles.Meta.Render(fmt.Sprintf("%s  %s  %s  %s", it.Version, it.Format, display.Size(it.Size), it.Repository))
		b.WriteString(marker + name + "  " + meta + "\n")
	}

	var summary strings.Builder
	_ = display.Summary(&summary, s.Result)
	b.WriteString(m.styles.Meta.Render(strings.TrimSpace(summary.String())))
	return b.String()
}

func (m *Model) renderDetail() string {
	s := m.detailState
	var body string

	switch {
	case s.Phase == search.Idle:
		return ""
	case s.Loading():
		body = m.spinner.View() + m.styles.Status.Render(" Loading details...")
	case s.Err != nil:
		body = m.styles.Error.Render(display.Describe(s.Err))
	default:
		body = m.renderPackage(s.Result)
	}

	width := m.width - 2
	if width < 20 {
		width = 20
	}
	return m.styles.Panel.Width(width).Render(body)
}

func (m *Model) renderPackage(d *core.PackageDetail) string {
	if d == nil || d.Package == nil {
		return ""
	}

	var lines []string
	title := m.styles.Selected.Render(d.Package.Name)
	if d.Package.Description != "" {
		title += "  " + m.styles.Meta.Render(d.Package.Description)
	}
	lines = append(lines, title)

	if d.Package.Licenses != "" {
		lines = append(lines, m.label("license")+d.Package.Licenses)
	}
	lines = append(lines, m.label("score")+m.renderScore(d.Score))

	if len(d.Versions) > 0 {
		var vs []string
		for i, v := range d.Versions {
			if i == maxDetailVersions {
				vs = append(vs, m.styles.Meta.Render(fmt.Sprintf("+%d more", len(d.Versions)-i)))
				break
			}
			text := v.Number
			if v.Status != core.StatusNone {
				text = m.styles.Warning.Render(text + " (" + string(v.Status) + ")")
			}
			vs = append(vs, text)
		}
		lines = append(lines, m.label("versions")+strings.Join(vs, ", "))
	}

	if m.urls != nil {
		links := core.BuildURLs(m.urls, d.Ref.Repository, d.Package.Format, d.Ref.Name, d.Ref.Version)
		for _, key := range []string{"browse", "download", "purl"} {
			if link, ok := links[key]; ok {
				lines = append(lines, m.label(key)+link)
			}
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m *Model) renderScore(s *core.Score) string {
	if s == nil {
		return m.styles.Meta.Render("not scanned")
	}
	text := fmt.Sprintf("%.1f (%s)", s.Value, s.Grade)
	v := s.Vulnerabilities
	switch {
	case v.Critical > 0 || v.High > 0:
		text += fmt.Sprintf("  %d critical, %d high", v.Critical, v.High)
		return m.styles.Error.Render(text)
	case v.Total() > 0:
		text += fmt.Sprintf("  %d findings", v.Total())
		return m.styles.Warning.Render(text)
	}
	return m.styles.Good.Render(text)
}

func (m *Model) label(name string) string {
	return m.styles.Label.Render(fmt.Sprintf("%-9s", name))
}
