package testutil

import (
	"sync"
	"time"
)

// Clock is a settable wall clock for tests.
//
// Unlike time.Now, Clock only moves when told to, so timestamps in results
// and persisted state are reproducible.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock stopped at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current time. It has the signature of time.Now so it can
// be passed wherever a clock function is expected.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// RunIDs returns the same run id every time.
//
// Thread-safety: RunIDs is stateless and safe for concurrent use.
type RunIDs struct {
	id string
}

// NewRunIDs creates a fixed run id generator. An empty id becomes
// "test-run".
func NewRunIDs(id string) RunIDs {
	if id == "" {
		id = "test-run"
	}
	return RunIDs{id: id}
}

// Generate returns the fixed id.
func (g RunIDs) Generate() string {
	return g.id
}
