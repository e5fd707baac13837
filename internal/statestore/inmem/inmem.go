// Package inmem implements statestore.Store in a process-local map, used by
// local-mode deployments and by tests across every component. Grounded on
// runtime/agent/run/inmem/inmem.go's mutex-protected map convention.
package inmem

import (
	"context"
	"sync"

	"github.com/open-swe/agent-engine/internal/state"
	"github.com/open-swe/agent-engine/internal/statestore"
)

// Store is an in-memory statestore.Store.
type Store struct {
	mu      sync.RWMutex
	threads map[string]*state.Thread
}

// New builds an empty Store.
func New() *Store {
	return &Store{threads: make(map[string]*state.Thread)}
}

// Get returns a clone of the persisted thread, or statestore.ErrNotFound.
func (s *Store) Get(_ context.Context, threadID string) (*state.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[threadID]
	if !ok {
		return nil, statestore.ErrNotFound
	}
	return t.Clone(), nil
}

// Put persists a clone of thread, keyed by its ThreadID.
func (s *Store) Put(_ context.Context, thread *state.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[thread.ThreadID] = thread.Clone()
	return nil
}

// Delete removes any record for threadID; deleting a missing id is a no-op.
func (s *Store) Delete(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	return nil
}
