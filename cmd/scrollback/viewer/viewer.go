// Package viewer renders an exported transcript in the terminal. The
// viewer is read-only: it scrolls the conversation in a viewport and,
// when an analysis summary exists, toggles to a markdown-rendered
// summary pane on Tab. The functionality is split across files:
//   - viewer.go: types, Init, Update loop (this file)
//   - view.go: rendering functions
//   - styles.go: lipgloss styling
package viewer

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"scrollback/internal/scrape"
)

// pane identifies which content the viewport shows.
type pane int

const (
	paneTranscript pane = iota
	paneSummary
)

// Options configures a viewer session.
type Options struct {
	// Character labels the non-viewer side of the conversation.
	Character string
	// URL is the chat's source address, shown in the header.
	URL string
	// Messages is the transcript in turn order.
	Messages []scrape.ScrapedMessage
	// Summary is the analysis summary markdown; empty hides the pane.
	Summary string
}

// Model is the bubbletea model for the transcript viewer.
type Model struct {
	viewport viewport.Model
	spinner  spinner.Model
	styles   Styles
	renderer *glamour.TermRenderer

	opts   Options
	pane   pane
	ready  bool
	width  int
	height int
}

// New builds a viewer model over the given transcript.
func New(opts Options) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	if opts.Character == "" {
		opts.Character = "Character"
	}
	return Model{
		spinner: sp,
		styles:  DefaultStyles(),
		opts:    opts,
	}
}

// Init starts the spinner shown until the first window size arrives.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyTab:
			if m.opts.Summary != "" {
				m.pane = m.togglePane()
				m.viewport.SetContent(m.paneContent())
				m.viewport.GotoTop()
			}
			return m, nil
		case tea.KeyHome:
			m.viewport.GotoTop()
			return m, nil
		case tea.KeyEnd:
			m.viewport.GotoBottom()
			return m, nil
		case tea.KeyRunes:
			switch string(msg.Runes) {
			case "q":
				return m, tea.Quit
			case "g":
				m.viewport.GotoTop()
				return m, nil
			case "G":
				m.viewport.GotoBottom()
				return m, nil
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 3
		footerHeight := 2
		contentWidth := msg.Width - 4
		if contentWidth < 1 {
			contentWidth = 1
		}
		contentHeight := msg.Height - headerHeight - footerHeight
		if contentHeight < 1 {
			contentHeight = 1
		}

		if !m.ready {
			m.viewport = viewport.New(contentWidth, contentHeight)
			m.ready = true
		} else {
			m.viewport.Width = contentWidth
			m.viewport.Height = contentHeight
		}

		// Rebuild the markdown renderer so the summary rewraps.
		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(contentWidth-2),
		)
		m.viewport.SetContent(m.paneContent())
		return m, nil

	case spinner.TickMsg:
		if !m.ready {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) togglePane() pane {
	if m.pane == paneTranscript {
		return paneSummary
	}
	return paneTranscript
}

// paneContent returns the rendered content for the active pane.
func (m Model) paneContent() string {
	if m.pane == paneSummary {
		return m.renderSummary()
	}
	return m.renderTranscript()
}

// Run starts the viewer and blocks until the user quits.
func Run(opts Options) error {
	p := tea.NewProgram(New(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
