package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/notesync/internal/recurrence"
	"github.com/roach88/notesync/internal/task"
)

// SourceCall records one write made to a Source.
type SourceCall struct {
	Op     string // "complete", "incomplete", "metadata", "append"
	Task   task.Task
	On     time.Time
	Update task.MetadataUpdate
}

// Source is an in-memory note collection. Writes are applied to its task
// list so a later Scan sees them, and a completed recurring task rolls
// over the same way a note would.
type Source struct {
	mu    sync.Mutex
	tasks []task.Task
	calls []SourceCall
	inbox string
	line  int

	// ScanErr, when set, is returned by Scan.
	ScanErr error
	// Changed lists paths HasChangedSince reports as modified.
	Changed map[string]bool
	// FailOps makes the named write operations fail.
	FailOps map[string]error
}

// NewSource creates a Source holding tasks. Tasks without provenance are
// placed in "notes.md" on consecutive lines.
func NewSource(tasks ...task.Task) *Source {
	s := &Source{inbox: "Inbox.md", Changed: map[string]bool{}, FailOps: map[string]error{}}
	for _, t := range tasks {
		s.add(t, "notes.md")
	}
	return s
}

func (s *Source) add(t task.Task, path string) task.Task {
	t = t.Clone()
	if t.Source == nil {
		s.line++
		t.Source = &task.Provenance{Path: path, Line: s.line, Original: t.Title}
	}
	t.ID = task.GenerateID(t)
	s.tasks = append(s.tasks, t)
	return t
}

// Add appends t to "notes.md" and returns it with its id.
func (s *Source) Add(t task.Task) task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(t, "notes.md").Clone()
}

// Scan returns a copy of the current tasks.
func (s *Source) Scan(ctx context.Context) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ScanErr != nil {
		return nil, s.ScanErr
	}
	out := make([]task.Task, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.Clone()
	}
	return out, nil
}

// GenerateID derives the content-based id.
func (s *Source) GenerateID(t task.Task) string {
	return task.GenerateID(t)
}

// MarkComplete completes t, inserting the next instance for a recurring
// task.
func (s *Source) MarkComplete(ctx context.Context, t task.Task, on time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(SourceCall{Op: "complete", Task: t, On: on}); err != nil {
		return 0, err
	}
	i, err := s.find(t)
	if err != nil {
		return 0, err
	}

	cur := s.tasks[i]
	cur.Completed = true
	cur.CompletedOn = &on
	cur.ID = task.GenerateID(cur)
	s.tasks[i] = cur

	if t.Recurrence == "" {
		return 0, nil
	}
	dates, ok := recurrence.Roll(t, on)
	if !ok {
		return 0, nil
	}
	next := t.Clone()
	next.Completed = false
	next.CompletedOn = nil
	next.Due, next.Start, next.Scheduled = dates.Due, dates.Start, dates.Scheduled
	s.line++
	next.Source = &task.Provenance{Path: t.Path(), Line: s.line, Original: t.Title}
	next.ID = task.GenerateID(next)
	s.tasks = append(s.tasks, next)
	return 1, nil
}

// MarkIncomplete reopens t.
func (s *Source) MarkIncomplete(ctx context.Context, t task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(SourceCall{Op: "incomplete", Task: t}); err != nil {
		return err
	}
	i, err := s.find(t)
	if err != nil {
		return err
	}
	s.tasks[i].Completed = false
	s.tasks[i].CompletedOn = nil
	return nil
}

// UpdateMetadata applies u to t.
func (s *Source) UpdateMetadata(ctx context.Context, t task.Task, u task.MetadataUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(SourceCall{Op: "metadata", Task: t, Update: u}); err != nil {
		return err
	}
	i, err := s.find(t)
	if err != nil {
		return err
	}
	next := u.ApplyTo(s.tasks[i])
	next.ID = task.GenerateID(next)
	s.tasks[i] = next
	return nil
}

// AppendNew adds t to the inbox note.
func (s *Source) AppendNew(ctx context.Context, t task.Task) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(SourceCall{Op: "append", Task: t}); err != nil {
		return task.Task{}, err
	}
	t = t.Clone()
	t.ID = ""
	t.Source = nil
	t.Completed = false
	t.CompletedOn = nil
	return s.add(t, s.inbox).Clone(), nil
}

// HasChangedSince reports the configured Changed entry for path.
func (s *Source) HasChangedSince(path string, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Changed[path], nil
}

// Tasks returns a copy of the current tasks.
func (s *Source) Tasks() []task.Task {
	out, _ := s.Scan(context.Background())
	return out
}

// Set replaces the task at index i, keeping its provenance.
func (s *Source) Set(i int, t task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t = t.Clone()
	t.Source = s.tasks[i].Source
	t.ID = task.GenerateID(t)
	s.tasks[i] = t
}

// Remove deletes the task at index i.
func (s *Source) Remove(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
}

// Calls returns every recorded write.
func (s *Source) Calls() []SourceCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SourceCall(nil), s.calls...)
}

func (s *Source) record(c SourceCall) error {
	s.calls = append(s.calls, c)
	if err := s.FailOps[c.Op]; err != nil {
		return err
	}
	return nil
}

func (s *Source) find(t task.Task) (int, error) {
	if t.Source == nil {
		return 0, errors.New("task has no provenance")
	}
	for i, cur := range s.tasks {
		if cur.Source.Path == t.Source.Path && cur.Source.Line == t.Source.Line {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no task at %s:%d", t.Source.Path, t.Source.Line)
}
