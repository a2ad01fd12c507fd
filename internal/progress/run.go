package progress

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"pintatina/internal/batch"
	"pintatina/internal/prompt"
)

// Run shows the live view until events is closed, ctx is done or the user
// hides it. Hiding the view does not stop the walk.
func Run(ctx context.Context, title string, initial batch.Snapshot, events <-chan batch.Event, out io.Writer) (Model, error) {
	p := tea.NewProgram(NewModel(title, initial, events),
		tea.WithContext(ctx),
		tea.WithOutput(out),
	)
	final, err := p.Run()
	if err != nil {
		return Model{}, err
	}
	m, ok := final.(Model)
	if !ok {
		return Model{}, fmt.Errorf("progress: unexpected model %T", final)
	}
	if m.aborted {
		go drain(events)
	}
	return m, nil
}

// Print writes one line per transition and a summary per finished walk
// until events is closed.
func Print(out io.Writer, events <-chan batch.Event) {
	for ev := range events {
		switch ev.Kind {
		case batch.EventReset:
			fmt.Fprintf(out, "generating %d pages\n", prompt.Count)
		case batch.EventTransition:
			if ev.Index >= 0 && ev.Index < len(ev.Snapshot.Items) {
				fmt.Fprintf(out, "[%d/%d] %s\n", ev.Snapshot.Completed(), prompt.Count, itemLine(ev.Snapshot.Items[ev.Index]))
			}
		case batch.EventDone:
			fmt.Fprintf(out, "%s finished: %d/%d pages completed\n", ev.Op, ev.Snapshot.Completed(), prompt.Count)
		}
	}
}

func drain(events <-chan batch.Event) {
	for range events {
	}
}
