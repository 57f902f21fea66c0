package session

import (
	"context"
	"sync"

	"github.com/biogate/biogate/internal/clock"
	"github.com/biogate/biogate/internal/model"
)

// MemoryStore is the default in-process session store. Expired sessions are
// collected lazily on read.
type MemoryStore struct {
	mu       sync.RWMutex
	clk      clock.Clock
	sessions map[string]*model.Session
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{
		clk:      clk,
		sessions: make(map[string]*model.Session),
	}
}

// Put stores a session keyed by its ID.
func (s *MemoryStore) Put(_ context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

// Get returns a live session or ErrNotFound. An expired entry is dropped on
// access.
func (s *MemoryStore) Get(_ context.Context, id string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.IsExpired(s.clk.Now()) {
		delete(s.sessions, id)
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

// Delete removes a session. Deleting an unknown ID is not an error.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Len returns the number of stored sessions, expired entries included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
