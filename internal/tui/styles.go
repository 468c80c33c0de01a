package tui

import "github.com/charmbracelet/lipgloss"

var (
	accent      = lipgloss.Color("#8BC34A")
	muted       = lipgloss.Color("#6B7280")
	destructive = lipgloss.Color("#E53935")
	warning     = lipgloss.Color("#FFC107")
)

// Styles groups the lipgloss styles used by the table view.
type Styles struct {
	Title       lipgloss.Style
	Identity    lipgloss.Style
	Header      lipgloss.Style
	FocusHeader lipgloss.Style
	Cell        lipgloss.Style
	Draft       lipgloss.Style
	Footer      lipgloss.Style
	Error       lipgloss.Style
	Notice      lipgloss.Style
	Help        lipgloss.Style
}

// DefaultStyles returns the standard palette.
func DefaultStyles() Styles {
	return Styles{
		Title:       lipgloss.NewStyle().Bold(true).Foreground(accent),
		Identity:    lipgloss.NewStyle().Foreground(muted),
		Header:      lipgloss.NewStyle().Bold(true).Underline(true),
		FocusHeader: lipgloss.NewStyle().Bold(true).Underline(true).Foreground(accent),
		Cell:        lipgloss.NewStyle(),
		Draft:       lipgloss.NewStyle().Italic(true).Foreground(warning),
		Footer:      lipgloss.NewStyle().Foreground(muted),
		Error:       lipgloss.NewStyle().Bold(true).Foreground(destructive),
		Notice:      lipgloss.NewStyle().Foreground(warning),
		Help:        lipgloss.NewStyle().Faint(true),
	}
}
