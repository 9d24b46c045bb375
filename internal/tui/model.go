package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"wordmap/internal/domain"
)

// Model is the Bubble Tea model for the word explorer.
type Model struct {
	mapper   domain.WordMapper
	input    textinput.Model
	viewport viewport.Model
	history  []domain.WordResult
	cursor   int
	summary  string
	status   string
	busy     bool
	ready    bool
}

type lookupMsg struct {
	result domain.WordResult
}

// New creates a new explorer backed by mapper. summary is shown under the title.
func New(mapper domain.WordMapper, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type an English or Korean word and press Enter"
	ti.Focus()
	ti.CharLimit = 64
	vp := viewport.New(0, 0)
	return Model{mapper: mapper, input: ti, viewport: vp, summary: summary, status: "Ready."}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) lookup(word string) tea.Cmd {
	return func() tea.Msg {
		return lookupMsg{result: m.mapper.Lookup(context.Background(), word)}
	}
}

// Update handles key, window and lookup events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // title, summary, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.viewport.SetContent(m.render())
		return m, nil
	case lookupMsg:
		m.busy = false
		m.history = append(m.history, msg.result)
		m.cursor = len(m.history) - 1
		if msg.result.Found() {
			m.status = fmt.Sprintf("Mapped %q", msg.result.Word)
		} else {
			m.status = fmt.Sprintf("No coordinates for %q", msg.result.Word)
		}
		m.viewport.SetContent(m.render())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			w := strings.TrimSpace(m.input.Value())
			if w == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.status = fmt.Sprintf("Looking up %q...", w)
			m.input.Reset()
			return m, m.lookup(w)
		case "up":
			if len(m.history) > 0 {
				m.cursor = (m.cursor - 1 + len(m.history)) % len(m.history)
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case "down":
			if len(m.history) > 0 {
				m.cursor = (m.cursor + 1) % len(m.history)
				m.viewport.SetContent(m.render())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("wordmap explorer")
	summary := dimStyle.Render(m.summary)
	results := resultBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) render() string {
	if len(m.history) == 0 {
		return "No words looked up yet."
	}
	r := m.history[m.cursor]
	var b strings.Builder
	fmt.Fprintf(&b, "Word %d/%d\n\n", m.cursor+1, len(m.history))
	fmt.Fprintf(&b, "word   %s\n", r.Word)
	fmt.Fprintf(&b, "lang   %s\n", orDash(r.Lang))
	fmt.Fprintf(&b, "key    %s\n", orDash(r.Key))
	if r.Found() {
		fmt.Fprintf(&b, "point  %s\n", highlightStyle.Render(formatPoint(*r.Point)))
	} else {
		fmt.Fprintf(&b, "point  %s\n", missStyle.Render("not found ("+orDash(r.Reason)+")"))
	}

	b.WriteString("\nHistory\n")
	for i, h := range m.history {
		line := fmt.Sprintf("%-16s ", h.Word)
		if h.Found() {
			line += formatPoint(*h.Point)
		} else {
			line += "-"
		}
		if i == m.cursor {
			line = highlightStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func formatPoint(p domain.Point2D) string {
	return fmt.Sprintf("(%.4f, %.4f)", p.X, p.Y)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	missStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)
