// Package progress renders a running collection in the terminal, either as
// a live bubbletea view or as one plain line per change.
package progress

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pintatina/internal/batch"
	"pintatina/internal/prompt"
)

const barWidth = 30

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	loadingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	hintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	boxStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#5B8DEF")).Padding(0, 1)
)

type eventMsg batch.Event

type closedMsg struct{}

// Model follows one orchestrator through its event channel until the
// channel is closed.
type Model struct {
	title    string
	events   <-chan batch.Event
	snapshot batch.Snapshot
	op       batch.Op
	walks    int
	closed   bool
	aborted  bool
}

func NewModel(title string, initial batch.Snapshot, events <-chan batch.Event) Model {
	return Model{title: title, snapshot: initial, events: events}
}

func (m Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func waitForEvent(events <-chan batch.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.snapshot = msg.Snapshot
		m.op = msg.Op
		if msg.Kind == batch.EventDone {
			m.walks++
		}
		return m, waitForEvent(m.events)
	case closedMsg:
		m.closed = true
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.aborted = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	done := m.snapshot.Completed()
	fmt.Fprintf(&b, "%s %d/%d\n\n", bar(m.snapshot.Progress()), done, prompt.Count)
	for _, it := range m.snapshot.Items {
		b.WriteString(itemLine(it))
		b.WriteString("\n")
	}

	switch {
	case m.closed:
		b.WriteString("\n" + hintStyle.Render("finished"))
	case m.op == batch.OpRetryFailed:
		b.WriteString("\n" + hintStyle.Render("retrying failed pages · q to hide"))
	default:
		b.WriteString("\n" + hintStyle.Render("q to hide"))
	}
	return boxStyle.Render(b.String()) + "\n"
}

// Snapshot is the last collection state the model received.
func (m Model) Snapshot() batch.Snapshot {
	return m.snapshot
}

// Aborted reports whether the view was closed from the keyboard.
func (m Model) Aborted() bool {
	return m.aborted
}

func bar(fraction float64) string {
	filled := int(fraction * barWidth)
	if filled > barWidth {
		filled = barWidth
	}
	return completedStyle.Render(strings.Repeat("█", filled)) +
		pendingStyle.Render(strings.Repeat("░", barWidth-filled))
}

func statusStyle(s batch.Status) lipgloss.Style {
	switch s {
	case batch.StatusLoading:
		return loadingStyle
	case batch.StatusCompleted:
		return completedStyle
	case batch.StatusError:
		return errorStyle
	default:
		return pendingStyle
	}
}

func itemLine(it batch.Item) string {
	label := statusStyle(it.Status).Render(fmt.Sprintf("%-9s", it.Status))
	return fmt.Sprintf("%2d  %s  %s", it.Index+1, label, hintStyle.Render(it.Modifier))
}
