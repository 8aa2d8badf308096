// Package viewer renders an exported transcript in the terminal.
package viewer

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	primary     = lipgloss.Color("#5f87ff")
	accent      = lipgloss.Color("#8BC34A")
	muted       = lipgloss.Color("#6c6c6c")
	destructive = lipgloss.Color("#e53935")
)

// Styles holds the styled components of the viewer.
type Styles struct {
	Header    lipgloss.Style
	Badge     lipgloss.Style
	Muted     lipgloss.Style
	You       lipgloss.Style
	Character lipgloss.Style
	Body      lipgloss.Style
	Error     lipgloss.Style
	Divider   lipgloss.Style
}

// DefaultStyles returns the viewer's default styling.
func DefaultStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().
			Background(primary).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 2).
			Bold(true),

		Badge: lipgloss.NewStyle().
			Background(accent).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 1).
			Bold(true),

		Muted: lipgloss.NewStyle().
			Foreground(muted),

		You: lipgloss.NewStyle().
			Foreground(primary).
			Bold(true).
			MarginTop(1),

		Character: lipgloss.NewStyle().
			Foreground(accent).
			Bold(true).
			MarginTop(1),

		Body: lipgloss.NewStyle().
			PaddingLeft(2),

		Error: lipgloss.NewStyle().
			Foreground(destructive).
			Bold(true),

		Divider: lipgloss.NewStyle().
			Foreground(muted),
	}
}

// RenderDivider returns a horizontal rule of the given width.
func (s Styles) RenderDivider(width int) string {
	if width < 1 {
		width = 1
	}
	return s.Divider.Render(strings.Repeat("─", width))
}
