// Package mapping holds the sync state: the table linking source task ids to
// destination task ids together with the hashes last observed on each side.
//
// State is the only durable artifact of a sync run. It is mutated exclusively
// by the reconciliation engine and persisted by a StateStore (see
// internal/store).
package mapping

import (
	"sort"
	"time"
)

// SchemaVersion identifies the id/hash scheme the persisted mappings were
// produced under. Bump it whenever task.GenerateID or task.GenerateHash
// change; older persisted state is then discarded on load.
const SchemaVersion = 3

// Mapping links one source task to one destination task.
type Mapping struct {
	SourceID        string    `json:"source_id"`
	DestinationID   string    `json:"destination_id"`
	SourceHash      string    `json:"source_hash"`
	DestinationHash string    `json:"destination_hash"`
	LastSync        time.Time `json:"last_sync"`
}

// State is the mapping collection plus its schema version and the time of the
// last completed sync.
//
// Invariants:
//   - at most one mapping per SourceID
//   - at most one mapping per DestinationID
//
// State is not safe for concurrent use; the engine owns it for a run.
type State struct {
	Version  int
	LastSync time.Time

	bySource map[string]Mapping
	byDest   map[string]string // destination id -> source id
}

// New returns an empty state at the current schema version.
func New() *State {
	return &State{
		Version:  SchemaVersion,
		bySource: make(map[string]Mapping),
		byDest:   make(map[string]string),
	}
}

// Len returns the number of mappings.
func (s *State) Len() int {
	return len(s.bySource)
}

// BySource finds the mapping for a source id.
func (s *State) BySource(sourceID string) (Mapping, bool) {
	m, ok := s.bySource[sourceID]
	return m, ok
}

// ByDestination finds the mapping for a destination id.
func (s *State) ByDestination(destID string) (Mapping, bool) {
	src, ok := s.byDest[destID]
	if !ok {
		return Mapping{}, false
	}
	return s.BySource(src)
}

// Upsert inserts or replaces the mapping for m.SourceID. Any other mapping
// holding the same destination id is evicted.
func (s *State) Upsert(m Mapping) {
	if old, ok := s.bySource[m.SourceID]; ok && old.DestinationID != m.DestinationID {
		delete(s.byDest, old.DestinationID)
	}
	if holder, ok := s.byDest[m.DestinationID]; ok && holder != m.SourceID {
		delete(s.bySource, holder)
	}
	s.bySource[m.SourceID] = m
	s.byDest[m.DestinationID] = m.SourceID
}

// RemoveBySource deletes the mapping for a source id. It reports whether a
// mapping was removed.
func (s *State) RemoveBySource(sourceID string) bool {
	m, ok := s.bySource[sourceID]
	if !ok {
		return false
	}
	delete(s.bySource, sourceID)
	if s.byDest[m.DestinationID] == sourceID {
		delete(s.byDest, m.DestinationID)
	}
	return true
}

// RemoveByDestination deletes the mapping for a destination id.
func (s *State) RemoveByDestination(destID string) bool {
	src, ok := s.byDest[destID]
	if !ok {
		return false
	}
	return s.RemoveBySource(src)
}

// All returns every mapping ordered by source id.
func (s *State) All() []Mapping {
	out := make([]Mapping, 0, len(s.bySource))
	for _, m := range s.bySource {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SourceID < out[j].SourceID
	})
	return out
}

// Clone returns an independent copy of the state.
func (s *State) Clone() *State {
	c := New()
	c.Version = s.Version
	c.LastSync = s.LastSync
	for _, m := range s.bySource {
		c.Upsert(m)
	}
	return c
}
