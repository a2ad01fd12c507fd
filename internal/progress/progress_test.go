package progress

import (
	"bytes"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pintatina/internal/batch"
)

func snapshot(statuses ...batch.Status) batch.Snapshot {
	items := make([]batch.Item, len(statuses))
	for i, s := range statuses {
		items[i] = batch.Item{Index: i, Status: s, Modifier: "mod"}
	}
	return batch.Snapshot{Items: items}
}

func TestModel_FollowsEventsUntilClosed(t *testing.T) {
	events := make(chan batch.Event, 2)
	m := NewModel("Collection", snapshot(batch.StatusPending), events)

	events <- batch.Event{Kind: batch.EventTransition, Op: batch.OpGenerateAll, Index: 0, Status: batch.StatusCompleted, Snapshot: snapshot(batch.StatusCompleted)}
	msg := m.Init()()
	next, cmd := m.Update(msg)
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.Equal(t, 1, m.Snapshot().Completed())

	events <- batch.Event{Kind: batch.EventDone, Op: batch.OpGenerateAll, Index: -1, Snapshot: snapshot(batch.StatusCompleted)}
	next, cmd = m.Update(cmd())
	m = next.(Model)
	assert.Equal(t, 1, m.walks)

	close(events)
	next, cmd = m.Update(cmd())
	m = next.(Model)
	assert.True(t, m.closed)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Contains(t, m.View(), "finished")
}

func TestModel_KeyHidesView(t *testing.T) {
	m := NewModel("Collection", snapshot(batch.StatusPending), make(chan batch.Event))
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.True(t, next.(Model).Aborted())
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_View(t *testing.T) {
	m := NewModel("Mi colección", snapshot(batch.StatusCompleted, batch.StatusLoading, batch.StatusError), nil)
	view := m.View()
	assert.Contains(t, view, "Mi colección")
	assert.Contains(t, view, "1/10")
	assert.Contains(t, view, "loading")
	assert.Contains(t, view, "error")
}

func TestPrint(t *testing.T) {
	events := make(chan batch.Event, 3)
	events <- batch.Event{Kind: batch.EventReset, Op: batch.OpGenerateAll, Index: -1}
	events <- batch.Event{Kind: batch.EventTransition, Op: batch.OpGenerateAll, Index: 0, Status: batch.StatusError, Snapshot: snapshot(batch.StatusError)}
	events <- batch.Event{Kind: batch.EventDone, Op: batch.OpGenerateAll, Index: -1, Snapshot: snapshot(batch.StatusError)}
	close(events)

	var out bytes.Buffer
	Print(&out, events)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "generating 10 pages", lines[0])
	assert.Contains(t, lines[1], "error")
	assert.Equal(t, "generate_all finished: 0/10 pages completed", lines[2])
}
