// Package render formats compiler results for the terminal.
package render

import "github.com/charmbracelet/lipgloss"

var (
	// Colors - all colors meet WCAG AA contrast (4.5:1) on dark backgrounds
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	InfoColor      = lipgloss.Color("#60A5FA") // Blue
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
)

// styles are bound to one renderer so color support follows the writer.
type styles struct {
	title    lipgloss.Style
	file     lipgloss.Style
	position lipgloss.Style
	code     lipgloss.Style
	ok       lipgloss.Style
	severity map[Severity]lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:    r.NewStyle().Bold(true).Foreground(PrimaryColor),
		file:     r.NewStyle().Bold(true).Underline(true),
		position: r.NewStyle().Foreground(MutedColor),
		code:     r.NewStyle().Foreground(MutedColor).Italic(true),
		ok:       r.NewStyle().Bold(true).Foreground(SecondaryColor),
		severity: map[Severity]lipgloss.Style{
			SeverityError:   r.NewStyle().Bold(true).Foreground(ErrorColor),
			SeverityWarning: r.NewStyle().Bold(true).Foreground(WarningColor),
			SeverityInfo:    r.NewStyle().Foreground(InfoColor),
			SeverityHint:    r.NewStyle().Foreground(MutedColor),
		},
	}
}
