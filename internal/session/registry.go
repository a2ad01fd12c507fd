package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"pintatina/internal/batch"
)

type Options struct {
	// MaxSessions bounds memory; the least recently used session is
	// dropped when a new one would exceed it.
	MaxSessions int
	NewBatch    func() (*batch.Orchestrator, error)
	Logger      *slog.Logger
}

// Registry keeps sessions in memory only.
type Registry struct {
	mu       sync.Mutex
	cache    *lru.Cache[string, *Session]
	newBatch func() (*batch.Orchestrator, error)
	logger   *slog.Logger
}

func NewRegistry(opts Options) (*Registry, error) {
	if opts.NewBatch == nil {
		return nil, errors.New("session: batch factory is required")
	}
	size := opts.MaxSessions
	if size <= 0 {
		size = 256
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	cache, err := lru.NewWithEvict[string, *Session](size, func(id string, s *Session) {
		logger.Info("session dropped", "session", id, "running", s.Batch.Running())
	})
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	return &Registry{cache: cache, newBatch: opts.NewBatch, logger: logger}, nil
}

// Create starts a session under a fresh random id.
func (r *Registry) Create() (*Session, error) {
	return r.GetOrCreate(uuid.NewString())
}

func (r *Registry) Get(id string) (*Session, bool) {
	s, ok := r.cache.Get(id)
	if ok {
		s.Touch()
	}
	return s, ok
}

// GetOrCreate returns the session stored under key, creating it first if
// needed. Front-ends with their own identity (a chat id) use it directly.
func (r *Registry) GetOrCreate(key string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.cache.Get(key); ok {
		s.Touch()
		return s, nil
	}

	orch, err := r.newBatch()
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}
	s := newSession(key, orch)
	r.cache.Add(key, s)
	r.logger.Debug("session created", "session", key)
	return s, nil
}

func (r *Registry) Remove(id string) bool {
	return r.cache.Remove(id)
}

func (r *Registry) Len() int {
	return r.cache.Len()
}
