package shell

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	accent      = lipgloss.Color("#8BC34A")
	muted       = lipgloss.Color("#7a8699")
	destructive = lipgloss.Color("#e53935")
	warning     = lipgloss.Color("#FFC107")
	info        = lipgloss.Color("#2196F3")
)

// Styles groups every style the shell renders with. Styles are bound to the
// output writer, so piped output carries no escape codes.
type Styles struct {
	Banner    lipgloss.Style
	Prompt    lipgloss.Style
	ToolStart lipgloss.Style
	ToolOK    lipgloss.Style
	ToolError lipgloss.Style
	Error     lipgloss.Style
	Muted     lipgloss.Style
	Title     lipgloss.Style
	Label     lipgloss.Style

	status   map[string]lipgloss.Style
	severity map[string]lipgloss.Style
}

// NewStyles builds the styles for w.
func NewStyles(w io.Writer) Styles {
	r := lipgloss.NewRenderer(w)
	bold := func(c lipgloss.Color) lipgloss.Style { return r.NewStyle().Foreground(c).Bold(true) }

	return Styles{
		Banner:    bold(accent),
		Prompt:    bold(accent),
		ToolStart: r.NewStyle().Foreground(muted),
		ToolOK:    r.NewStyle().Foreground(accent),
		ToolError: r.NewStyle().Foreground(warning),
		Error:     bold(destructive),
		Muted:     r.NewStyle().Foreground(muted),
		Title:     r.NewStyle().Bold(true).Underline(true),
		Label:     r.NewStyle().Bold(true),

		status: map[string]lipgloss.Style{
			"investigating": r.NewStyle().Foreground(info),
			"resolved":      r.NewStyle().Foreground(accent),
			"escalated":     bold(destructive),
		},
		severity: map[string]lipgloss.Style{
			"critical": bold(destructive),
			"high":     r.NewStyle().Foreground(destructive),
			"medium":   r.NewStyle().Foreground(warning),
			"low":      r.NewStyle().Foreground(muted),
		},
	}
}

// Status renders an incident or hypothesis status.
func (s Styles) Status(v string) string {
	if st, ok := s.status[v]; ok {
		return st.Render(v)
	}
	return v
}

// Severity renders an incident severity.
func (s Styles) Severity(v string) string {
	if st, ok := s.severity[v]; ok {
		return st.Render(v)
	}
	return v
}
