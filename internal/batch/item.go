package batch

import (
	"pintatina/internal/domain"
	"pintatina/internal/prompt"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusLoading   Status = "loading"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether s is completed or error.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Item is one of the ten pages of a collection. Result is set only while
// Status is completed.
type Item struct {
	Index    int           `json:"index" yaml:"index"`
	Status   Status        `json:"status" yaml:"status"`
	Modifier string        `json:"modifier" yaml:"modifier"`
	Result   *domain.Image `json:"-" yaml:"-"`
}

// Snapshot is a copy of the collection at one point in time. Counters are
// derived from the items and never stored.
type Snapshot struct {
	Items []Item `json:"items" yaml:"items"`
}

func (s Snapshot) Completed() int {
	n := 0
	for _, it := range s.Items {
		if it.Status == StatusCompleted {
			n++
		}
	}
	return n
}

func (s Snapshot) HasError() bool {
	for _, it := range s.Items {
		if it.Status == StatusError {
			return true
		}
	}
	return false
}

// Progress is the completed fraction of the collection, in [0,1].
func (s Snapshot) Progress() float64 {
	return float64(s.Completed()) / float64(prompt.Count)
}

// CompletedItems returns the completed items in ascending index order.
func (s Snapshot) CompletedItems() []Item {
	var out []Item
	for _, it := range s.Items {
		if it.Status == StatusCompleted && it.Result != nil {
			out = append(out, it)
		}
	}
	return out
}

// Retryable reports whether any item is pending or in error.
func (s Snapshot) Retryable() bool {
	for _, it := range s.Items {
		if it.Status == StatusPending || it.Status == StatusError {
			return true
		}
	}
	return false
}

// Settled reports whether every item is in a terminal state.
func (s Snapshot) Settled() bool {
	for _, it := range s.Items {
		if !it.Status.Terminal() {
			return false
		}
	}
	return true
}

func freshItems() [prompt.Count]Item {
	var items [prompt.Count]Item
	for i := range items {
		mod, _ := prompt.Modifier(i)
		items[i] = Item{Index: i, Status: StatusPending, Modifier: mod}
	}
	return items
}
