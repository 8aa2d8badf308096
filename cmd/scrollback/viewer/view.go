// Package viewer renders an exported transcript in the terminal.
// This file contains the view rendering functions.
package viewer

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"scrollback/internal/scrape"
)

func (m Model) View() string {
	if !m.ready {
		return fmt.Sprintf("\n  %s Loading transcript...\n", m.spinner.View())
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderFooter(),
	)
}

func (m Model) renderHeader() string {
	title := m.styles.Header.Render(" scrollback ")
	count := m.styles.Badge.Render(fmt.Sprintf("%d messages", len(m.opts.Messages)))

	paneName := "Transcript"
	if m.pane == paneSummary {
		paneName = "Summary"
	}

	line := lipgloss.JoinHorizontal(
		lipgloss.Center,
		title, " ",
		count, "  ",
		m.styles.Muted.Render(m.opts.Character+" · "+paneName),
	)

	sub := ""
	if m.opts.URL != "" {
		sub = m.styles.Muted.Render(" " + m.opts.URL)
	}
	return lipgloss.JoinVertical(lipgloss.Left, line, sub, m.styles.RenderDivider(m.width))
}

func (m Model) renderFooter() string {
	hints := "↑/↓: scroll | g/G: top/bottom | q: quit"
	if m.opts.Summary != "" {
		hints = "Tab: transcript/summary | " + hints
	}
	pct := fmt.Sprintf("%3.0f%%", m.viewport.ScrollPercent()*100)
	return m.styles.Muted.Render(fmt.Sprintf(" %s  %s", pct, hints))
}

// renderTranscript lays out the conversation with role-styled speaker
// labels. Transcript text is plain, not markdown.
func (m Model) renderTranscript() string {
	if len(m.opts.Messages) == 0 {
		return m.styles.Muted.Render("\n  (empty transcript)")
	}

	var sb strings.Builder
	for _, msg := range m.opts.Messages {
		if msg.Role == scrape.RoleViewer {
			sb.WriteString(m.styles.You.Render("You") + "\n")
		} else {
			sb.WriteString(m.styles.Character.Render(m.opts.Character) + "\n")
		}
		sb.WriteString(m.styles.Body.Width(m.viewport.Width).Render(msg.Text))
		sb.WriteString("\n")
	}
	return sb.String()
}

// renderSummary renders the analysis summary through glamour, falling
// back to the raw markdown when rendering fails.
func (m Model) renderSummary() (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = m.opts.Summary
		}
	}()

	if m.renderer != nil && m.opts.Summary != "" {
		if rendered, err := m.renderer.Render(m.opts.Summary); err == nil {
			return rendered
		}
	}
	return m.opts.Summary
}
