package batch

type EventKind string

const (
	// EventReset is published when GenerateAll starts a new collection.
	EventReset EventKind = "reset"
	// EventTransition is published after every single item change.
	EventTransition EventKind = "transition"
	// EventDone is published once a walk has settled every item.
	EventDone EventKind = "done"
)

type Op string

const (
	OpGenerateAll Op = "generate_all"
	OpRetryFailed Op = "retry_failed"
)

// Event describes one change of the collection. Index is -1 for reset and
// done events.
type Event struct {
	Kind     EventKind `json:"kind"`
	Op       Op        `json:"op"`
	Index    int       `json:"index"`
	Status   Status    `json:"status,omitempty"`
	Snapshot Snapshot  `json:"snapshot"`
}

// Subscribe returns a channel receiving events in the order they happen and
// a function that stops delivery and closes the channel. A subscriber that
// falls behind by more than the buffer loses events; the last snapshot is
// always available through Snapshot.
func (o *Orchestrator) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, o.eventBuffer)

	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	o.mu.Unlock()

	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if c, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(c)
		}
	}
}

// publish holds the lock while sending so an unsubscribe cannot close a
// channel mid-send. Sends never block.
func (o *Orchestrator) publish(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, ch := range o.subs {
		select {
		case ch <- ev:
		default:
			o.logger.Warn("dropping batch event for slow subscriber", "subscriber", id, "kind", ev.Kind, "index", ev.Index)
		}
	}
}
