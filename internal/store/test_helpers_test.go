package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/notesync/internal/mapping"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestState builds a state with n mappings s<i> -> d<i>.
func createTestState(n int) *mapping.State {
	st := mapping.New()
	st.LastSync = time.Date(2026, 2, 8, 9, 30, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		st.Upsert(mapping.Mapping{
			SourceID:        "s" + string(rune('a'+i)),
			DestinationID:   "d" + string(rune('a'+i)),
			SourceHash:      "sh",
			DestinationHash: "dh",
			LastSync:        st.LastSync,
		})
	}
	return st
}
