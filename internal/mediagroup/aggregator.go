// Package mediagroup collects the photos of a Telegram album, which arrive
// as separate updates, into one group.
package mediagroup

import (
	"fmt"
	"sync"
	"time"
)

type Item struct {
	ChatID       int64
	MediaGroupID string
	Caption      string
	FileID       string
}

// Group is a settled album. Dropped counts photos beyond Limit.
type Group struct {
	ChatID  int64
	Caption string
	FileIDs []string
	Dropped int
}

type Options struct {
	Debounce time.Duration
	// Limit caps the files kept per album. Zero keeps all of them.
	Limit   int
	OnFlush func(Group)
}

// Aggregator flushes an album once no new item has arrived for the
// debounce interval.
type Aggregator struct {
	mu       sync.Mutex
	debounce time.Duration
	limit    int
	onFlush  func(Group)
	groups   map[string]*pendingGroup
	stopped  bool
}

type pendingGroup struct {
	group Group
	timer *time.Timer
}

func New(opts Options) *Aggregator {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 1200 * time.Millisecond
	}

	return &Aggregator{
		debounce: debounce,
		limit:    opts.Limit,
		onFlush:  opts.OnFlush,
		groups:   make(map[string]*pendingGroup),
	}
}

// Add records one album item. It reports false for items that are not part
// of an album or arrive after Stop.
func (a *Aggregator) Add(item Item) bool {
	if item.MediaGroupID == "" || item.FileID == "" {
		return false
	}

	key := makeKey(item.ChatID, item.MediaGroupID)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return false
	}

	pg, ok := a.groups[key]
	if !ok {
		pg = &pendingGroup{group: Group{ChatID: item.ChatID}}
		a.groups[key] = pg
	}
	if a.limit > 0 && len(pg.group.FileIDs) >= a.limit {
		pg.group.Dropped++
	} else {
		pg.group.FileIDs = append(pg.group.FileIDs, item.FileID)
	}
	// Telegram puts the caption on one item only, not always the first.
	if item.Caption != "" {
		pg.group.Caption = item.Caption
	}

	if pg.timer != nil {
		pg.timer.Stop()
	}
	pg.timer = time.AfterFunc(a.debounce, func() {
		a.flush(key)
	})
	return true
}

// Pending is the number of albums still waiting for their debounce.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.groups)
}

// Stop cancels every pending timer and flushes the waiting albums at once.
// Items added afterwards are rejected.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	a.stopped = true
	groups := make([]Group, 0, len(a.groups))
	for key, pg := range a.groups {
		if pg.timer != nil {
			pg.timer.Stop()
		}
		groups = append(groups, pg.group)
		delete(a.groups, key)
	}
	onFlush := a.onFlush
	a.mu.Unlock()

	if onFlush == nil {
		return
	}
	for _, g := range groups {
		onFlush(g)
	}
}

func (a *Aggregator) flush(key string) {
	a.mu.Lock()
	pg, ok := a.groups[key]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.groups, key)
	group := pg.group
	onFlush := a.onFlush
	a.mu.Unlock()

	if onFlush != nil {
		onFlush(group)
	}
}

func makeKey(chatID int64, mediaGroupID string) string {
	return fmt.Sprintf("%d:%s", chatID, mediaGroupID)
}
