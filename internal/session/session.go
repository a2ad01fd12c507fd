package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"pintatina/internal/batch"
	"pintatina/internal/reference"
)

var (
	ErrNoPhotos      = errors.New("at least one photo is required")
	ErrNoDescription = errors.New("description is required")
)

// Session is one user's working state: reference photos, the description
// being typed, a delivery address and the collection generated from them.
type Session struct {
	ID        string
	CreatedAt time.Time
	Photos    *reference.Set
	Batch     *batch.Orchestrator

	mu           sync.Mutex
	description  string
	address      string
	lastActivity time.Time
}

func newSession(id string, orch *batch.Orchestrator) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		Photos:       reference.NewSet(),
		Batch:        orch,
		lastActivity: now,
	}
}

func (s *Session) SetDescription(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.description = text
	s.lastActivity = time.Now()
}

func (s *Session) Description() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.description
}

func (s *Session) SetAddress(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.address = strings.TrimSpace(address)
	s.lastActivity = time.Now()
}

func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Input checks that the session can start a collection and returns what to
// generate it from.
func (s *Session) Input() (batch.Input, error) {
	images := s.Photos.Images()
	if len(images) == 0 {
		return batch.Input{}, ErrNoPhotos
	}
	desc := s.Description()
	if strings.TrimSpace(desc) == "" {
		return batch.Input{}, ErrNoDescription
	}
	return batch.Input{Description: desc, Images: images}, nil
}
