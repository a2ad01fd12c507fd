// Package batch drives the ten pages of a collection through an image
// provider, one attempt at a time, and publishes every state change.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"pintatina/internal/domain"
	"pintatina/internal/imgutil"
	"pintatina/internal/mention"
	"pintatina/internal/prompt"
)

var (
	// ErrBatchRunning is returned when a walk is requested while another
	// one is still in progress.
	ErrBatchRunning = errors.New("batch already running")
	// ErrNoInput is returned by RetryFailed before any GenerateAll.
	ErrNoInput = errors.New("no description to retry")
	// ErrEmptyResult marks a provider response without image bytes.
	ErrEmptyResult = errors.New("provider returned no image data")
	// ErrMalformedResult marks image bytes that cannot be placed on a page.
	ErrMalformedResult = errors.New("provider returned an unusable image")
)

// Provider generates one image per request.
type Provider interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (domain.Image, error)
}

// Counter is the collections-generated tally; Increment is called once per
// GenerateAll.
type Counter interface {
	Increment() int64
}

// Input is what every page of a collection is generated from.
type Input struct {
	Description string
	Images      []domain.ReferenceImage
}

type Options struct {
	Provider Provider
	Logger   *slog.Logger
	// AttemptTimeout bounds a single provider call. Zero means no limit.
	AttemptTimeout time.Duration
	Counter        Counter
	// EventBuffer is the channel size handed to each subscriber.
	EventBuffer int
}

// Orchestrator owns one collection. It is the only writer of the items and
// runs at most one walk at a time, so at most one provider call is ever in
// flight.
type Orchestrator struct {
	provider       Provider
	logger         *slog.Logger
	attemptTimeout time.Duration
	counter        Counter
	eventBuffer    int

	mu       sync.Mutex
	items    [prompt.Count]Item
	input    *Input
	running  bool
	subs     map[int]chan Event
	nextSub  int
	finished chan struct{}
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Provider == nil {
		return nil, errors.New("batch: provider is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	buffer := opts.EventBuffer
	if buffer <= 0 {
		buffer = 64
	}
	done := make(chan struct{})
	close(done)
	return &Orchestrator{
		provider:       opts.Provider,
		logger:         logger,
		attemptTimeout: opts.AttemptTimeout,
		counter:        opts.Counter,
		eventBuffer:    buffer,
		items:          freshItems(),
		subs:           make(map[int]chan Event),
		finished:       done,
	}, nil
}

// GenerateAll starts a new collection from in and walks indices 0..9 in
// order. Every item ends completed or error; a failed item never stops the
// walk. Cancelling ctx does not abort the walk, only its values are kept.
func (o *Orchestrator) GenerateAll(ctx context.Context, in Input) (Snapshot, error) {
	stored := Input{
		Description: in.Description,
		Images:      append([]domain.ReferenceImage(nil), in.Images...),
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return Snapshot{}, ErrBatchRunning
	}
	o.running = true
	o.finished = make(chan struct{})
	o.input = &stored
	o.items = freshItems()
	snap := o.snapshotLocked()
	o.mu.Unlock()

	if o.counter != nil {
		o.counter.Increment()
	}
	if dangling := mention.Dangling(stored.Description, len(stored.Images)); len(dangling) > 0 {
		o.logger.Warn("description cites missing photos", "ordinals", dangling, "photos", len(stored.Images))
	}
	o.logger.Info("batch started", "op", OpGenerateAll, "photos", len(stored.Images))

	o.publish(Event{Kind: EventReset, Op: OpGenerateAll, Index: -1, Snapshot: snap})
	return o.walk(ctx, OpGenerateAll, stored), nil
}

// RetryFailed repeats the walk for pending and error items only, with the
// input of the last GenerateAll. Completed items keep their result. When
// nothing is retryable it returns at once without calling the provider or
// publishing anything.
func (o *Orchestrator) RetryFailed(ctx context.Context) (Snapshot, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return Snapshot{}, ErrBatchRunning
	}
	snap := o.snapshotLocked()
	if !snap.Retryable() {
		o.mu.Unlock()
		return snap, nil
	}
	if o.input == nil {
		o.mu.Unlock()
		return snap, ErrNoInput
	}
	o.running = true
	o.finished = make(chan struct{})
	in := *o.input
	o.mu.Unlock()

	o.logger.Info("batch started", "op", OpRetryFailed, "retryable", prompt.Count-snap.Completed())
	return o.walk(ctx, OpRetryFailed, in), nil
}

func (o *Orchestrator) walk(ctx context.Context, op Op, in Input) Snapshot {
	ctx = context.WithoutCancel(ctx)

	for i := 0; i < prompt.Count; i++ {
		if o.status(i) == StatusCompleted {
			continue
		}

		o.transition(op, i, StatusLoading, nil)

		img, err := o.attempt(ctx, in, i)
		if err != nil {
			o.logger.Warn("page failed", "op", op, "index", i, "error", err)
			o.transition(op, i, StatusError, nil)
			continue
		}
		o.logger.Debug("page completed", "op", op, "index", i, "bytes", len(img.Data))
		o.transition(op, i, StatusCompleted, &img)
	}

	snap := o.Snapshot()
	o.logger.Info("batch finished", "op", op, "completed", snap.Completed(), "has_error", snap.HasError())
	o.publish(Event{Kind: EventDone, Op: op, Index: -1, Snapshot: snap})

	o.mu.Lock()
	o.running = false
	close(o.finished)
	o.mu.Unlock()
	return snap
}

func (o *Orchestrator) attempt(ctx context.Context, in Input, index int) (domain.Image, error) {
	req, err := prompt.BuildRequest(in.Description, index, in.Images)
	if err != nil {
		return domain.Image{}, err
	}

	if o.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.attemptTimeout)
		defer cancel()
	}

	img, err := o.provider.Generate(ctx, req)
	if err != nil {
		return domain.Image{}, fmt.Errorf("generate page %d: %w", index, err)
	}
	if len(img.Data) == 0 {
		return domain.Image{}, fmt.Errorf("generate page %d: %w", index, ErrEmptyResult)
	}
	format, err := imgutil.Format(img.Data)
	if err != nil {
		return domain.Image{}, fmt.Errorf("generate page %d: %w: %v", index, ErrMalformedResult, err)
	}
	switch format {
	case "png", "jpeg", "gif":
	default:
		return domain.Image{}, fmt.Errorf("generate page %d: %w: format %s", index, ErrMalformedResult, format)
	}
	if img.MimeType == "" {
		img.MimeType = "image/" + format
	}
	return img, nil
}

func (o *Orchestrator) transition(op Op, index int, status Status, result *domain.Image) {
	o.mu.Lock()
	o.items[index].Status = status
	o.items[index].Result = result
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.publish(Event{Kind: EventTransition, Op: op, Index: index, Status: status, Snapshot: snap})
}

func (o *Orchestrator) status(index int) Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.items[index].Status
}

// Snapshot returns a copy of the collection.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	items := make([]Item, len(o.items))
	copy(items, o.items[:])
	return Snapshot{Items: items}
}

// Running reports whether a walk is in progress.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Input returns the input of the last GenerateAll.
func (o *Orchestrator) Input() (Input, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.input == nil {
		return Input{}, false
	}
	return *o.input, true
}

// Wait blocks until the current walk, if any, has finished or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	finished := o.finished
	o.mu.Unlock()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
