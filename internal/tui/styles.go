package tui

import "github.com/charmbracelet/lipgloss"

const (
	ColorAccent   = "39"  // search prompt, selection
	ColorWhite    = "255" // item names
	ColorGray     = "245" // secondary text
	ColorDarkGray = "238" // borders
	ColorRed      = "196" // errors
	ColorYellow   = "220" // deprecated versions, medium findings
	ColorGreen    = "42"  // good grades
)

// Styles holds all styles for the search screen.
type Styles struct {
	Prompt   lipgloss.Style
	Item     lipgloss.Style
	Selected lipgloss.Style
	Meta     lipgloss.Style
	Status   lipgloss.Style
	Error    lipgloss.Style
	Warning  lipgloss.Style
	Good     lipgloss.Style
	Label    lipgloss.Style
	Help     lipgloss.Style
	Panel    lipgloss.Style
}

// DefaultStyles returns the colored styles.
func DefaultStyles() Styles {
	return Styles{
		Prompt:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Item:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorWhite)),
		Selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Meta:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Status:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)).Italic(true),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Warning:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Good:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGreen)),
		Label:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Help:     lipgloss.NewStyle().Faint(true),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorDarkGray)).
			Padding(0, 1),
	}
}

// NoColorStyles returns styles without colors, for NO_COLOR terminals.
func NoColorStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Prompt:   plain.Bold(true),
		Item:     plain,
		Selected: plain.Bold(true),
		Meta:     plain,
		Status:   plain,
		Error:    plain,
		Warning:  plain,
		Good:     plain,
		Label:    plain,
		Help:     plain,
		Panel:    plain.Border(lipgloss.NormalBorder()).Padding(0, 1),
	}
}
