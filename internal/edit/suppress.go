package edit

import (
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const suppressionCacheSize = 1024

// SuppressionList remembers paths this process just wrote, so a file watcher
// can drop the change notification its own write caused. The oldest paths
// are evicted once the list is full.
type SuppressionList struct {
	ttl   time.Duration
	now   func() time.Time
	until *lru.Cache[string, time.Time]
}

// NewSuppressionList creates a list whose entries expire after ttl.
func NewSuppressionList(ttl time.Duration) *SuppressionList {
	// lru.New only fails for a non-positive size.
	until, _ := lru.New[string, time.Time](suppressionCacheSize)
	return &SuppressionList{
		ttl:   ttl,
		now:   time.Now,
		until: until,
	}
}

// Suppress marks path as self-modified.
func (s *SuppressionList) Suppress(path string) {
	s.until.Add(filepath.Clean(path), s.now().Add(s.ttl))
}

// Suppressed reports whether a change notification for path should be
// ignored. Expired entries are dropped.
func (s *SuppressionList) Suppressed(path string) bool {
	key := filepath.Clean(path)
	until, ok := s.until.Get(key)
	if !ok {
		return false
	}
	if s.now().After(until) {
		s.until.Remove(key)
		return false
	}
	return true
}
