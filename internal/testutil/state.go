package testutil

import (
	"context"
	"sync"

	"github.com/roach88/notesync/internal/mapping"
)

// StateStore keeps mapping state in memory.
type StateStore struct {
	mu    sync.Mutex
	state *mapping.State
	saves int
}

// NewStateStore creates a store holding st (or an empty state when nil).
func NewStateStore(st *mapping.State) *StateStore {
	if st == nil {
		st = mapping.New()
	}
	return &StateStore{state: st}
}

// Load returns a copy of the stored state.
func (s *StateStore) Load(ctx context.Context) (*mapping.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone(), nil
}

// Save replaces the stored state with a copy of st.
func (s *StateStore) Save(ctx context.Context, st *mapping.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st.Clone()
	s.saves++
	return nil
}

// State returns a copy of the stored state.
func (s *StateStore) State() *mapping.State {
	st, _ := s.Load(context.Background())
	return st
}

// Saves returns how many times Save was called.
func (s *StateStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
