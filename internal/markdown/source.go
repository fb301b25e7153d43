// Package markdown is the source adapter over a folder of Markdown notes.
//
// Task lines follow the Obsidian Tasks emoji format:
//
//   - [ ] Pay rent #home #list/Personal ⏫ 🔁 every month 🛫 2026-02-01 📅 2026-02-09
//
// Scanning is read-only. Every write goes through edit.Executor, so it is
// verified against the line captured at scan time and touches only the
// status character or a date's digits.
package markdown

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/roach88/notesync/internal/edit"
	"github.com/roach88/notesync/internal/engine"
	"github.com/roach88/notesync/internal/recurrence"
	"github.com/roach88/notesync/internal/task"
)

var (
	// ErrCollectionNotFound is returned by Scan when the vault root is missing.
	ErrCollectionNotFound = engine.ErrCollectionNotFound
	// ErrCollectionInvalid is returned by Scan when the vault root is unusable.
	ErrCollectionInvalid = engine.ErrCollectionInvalid
)

type lineKey struct {
	path string
	line int
}

// Source scans and edits a vault of Markdown notes.
type Source struct {
	root    string
	inbox   string
	exclude []string
	x       *edit.Executor

	mu sync.Mutex
	// Per-run bookkeeping, reset by Scan.
	shifts   map[string][]int     // path -> scan-time lines that had lines inserted above
	current  map[lineKey]string   // latest text of lines edited this run
	ownMtime map[string]time.Time // mtime left by our own last write
}

// Option configures a Source.
type Option func(*Source)

// WithInbox names the inbox note (relative to the root) that receives new
// tasks appended from a destination.
func WithInbox(rel string) Option {
	return func(s *Source) { s.inbox = filepath.ToSlash(rel) }
}

// WithExclude skips notes matching any of the slash-separated globs. A
// pattern ending in "/**" excludes a whole folder.
func WithExclude(globs ...string) Option {
	return func(s *Source) { s.exclude = append(s.exclude, globs...) }
}

// New creates a Source rooted at root.
func New(root string, x *edit.Executor, opts ...Option) *Source {
	s := &Source{root: root, x: x}
	for _, opt := range opts {
		opt(s)
	}
	s.reset()
	return s
}

// Root returns the vault root.
func (s *Source) Root() string {
	return s.root
}

// SetRunID tags the audit entries of subsequent edits.
func (s *Source) SetRunID(id string) {
	s.x.SetRunID(id)
}

// Inbox returns the inbox note path relative to the root.
func (s *Source) Inbox() string {
	return s.inbox
}

func (s *Source) reset() {
	s.shifts = make(map[string][]int)
	s.current = make(map[lineKey]string)
	s.ownMtime = make(map[string]time.Time)
}

// Scan reads every note and returns its tasks ordered by path and line.
func (s *Source) Scan(ctx context.Context) ([]task.Task, error) {
	info, err := os.Stat(s.root)
	switch {
	case os.IsNotExist(err):
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, s.root)
	case err != nil:
		return nil, fmt.Errorf("%w: %s: %v", ErrCollectionInvalid, s.root, err)
	case !info.IsDir():
		return nil, fmt.Errorf("%w: %s", ErrCollectionInvalid, s.root)
	}

	s.mu.Lock()
	s.reset()
	s.mu.Unlock()

	var tasks []task.Task
	err = filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if p != s.root && (strings.HasPrefix(d.Name(), ".") || s.excluded(rel)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(p), ".md") || s.excluded(rel) {
			return nil
		}

		found, err := scanFile(p, rel)
		if err != nil {
			return err
		}
		tasks = append(tasks, found...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.root, err)
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Source.Path != tasks[j].Source.Path {
			return tasks[i].Source.Path < tasks[j].Source.Path
		}
		return tasks[i].Source.Line < tasks[j].Source.Line
	})

	slog.Debug("vault scanned", "root", s.root, "tasks", len(tasks))
	return tasks, nil
}

func scanFile(abs, rel string) ([]task.Task, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}

	var out []task.Task
	inFence := false
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSuffix(sc.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		t, ok := ParseLine(line)
		if !ok {
			continue
		}
		t.Source = &task.Provenance{Path: rel, Line: n, Original: line}
		t.Modified = info.ModTime()
		t.ID = task.GenerateID(t)
		out = append(out, t)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return out, nil
}

func (s *Source) excluded(rel string) bool {
	for _, pattern := range s.exclude {
		if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
			if rel == prefix || strings.HasPrefix(rel, prefix+"/") {
				return true
			}
			continue
		}
		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

var _ engine.Source = (*Source)(nil)

// GenerateID derives the content-based id of a task.
func (s *Source) GenerateID(t task.Task) string {
	return task.GenerateID(t)
}

// HasChangedSince reports whether the note at rel was modified after since by
// anyone but this Source.
func (s *Source) HasChangedSince(rel string, since time.Time) (bool, error) {
	info, err := os.Stat(s.abs(rel))
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", rel, err)
	}
	s.mu.Lock()
	own, ok := s.ownMtime[rel]
	s.mu.Unlock()
	if ok && info.ModTime().Equal(own) {
		return false, nil
	}
	return info.ModTime().After(since), nil
}

// MarkComplete ticks the task and stamps the completion date. A recurring
// task is rolled over: its next instance is inserted above the completed
// line. The number of inserted lines is returned.
func (s *Source) MarkComplete(ctx context.Context, t task.Task, on time.Time) (int, error) {
	on = task.Truncate(on)
	out, err := s.apply(ctx, t, "complete", func(line string) ([]string, error) {
		done, err := setStatus(line, true)
		if err != nil {
			return nil, err
		}
		done = setDate(done, DoneMarker, &on)

		if t.Recurrence == "" || t.Completed {
			return []string{done}, nil
		}
		dates, ok := recurrence.Roll(t, on)
		if !ok {
			slog.Warn("unparseable recurrence rule, skipping rollover",
				"title", t.Title,
				"rule", t.Recurrence,
				"path", t.Path())
			return []string{done}, nil
		}

		next, err := setStatus(line, false)
		if err != nil {
			return nil, err
		}
		next = setDate(next, DoneMarker, nil)
		next = setDate(next, DueMarker, dates.Due)
		next = setDate(next, StartMarker, dates.Start)
		next = setDate(next, ScheduledMarker, dates.Scheduled)
		return []string{next, done}, nil
	})
	if err != nil {
		return 0, err
	}
	return out.Inserted, nil
}

// MarkIncomplete unticks the task and removes its completion date.
func (s *Source) MarkIncomplete(ctx context.Context, t task.Task) error {
	_, err := s.apply(ctx, t, "incomplete", func(line string) ([]string, error) {
		open, err := setStatus(line, false)
		if err != nil {
			return nil, err
		}
		return []string{setDate(open, DoneMarker, nil)}, nil
	})
	return err
}

// UpdateMetadata rewrites the dates and priority named by u.
func (s *Source) UpdateMetadata(ctx context.Context, t task.Task, u task.MetadataUpdate) error {
	if u.Empty() {
		return nil
	}
	_, err := s.apply(ctx, t, "update-metadata", func(line string) ([]string, error) {
		line = applyDateChange(line, DueMarker, u.Due)
		line = applyDateChange(line, StartMarker, u.Start)
		line = applyDateChange(line, ScheduledMarker, u.Scheduled)
		switch u.Priority.Kind() {
		case task.Unchanged:
		case task.Cleared:
			line = setPriority(line, task.PriorityNone)
		case task.Set:
			line = setPriority(line, u.Priority.Value())
		}
		return []string{line}, nil
	})
	return err
}

// AppendNew writes t as a new line at the end of the inbox note and returns
// the task as it now exists in the vault.
func (s *Source) AppendNew(ctx context.Context, t task.Task) (task.Task, error) {
	if s.inbox == "" {
		return task.Task{}, errors.New("append new task: no inbox configured")
	}
	line := FormatLine(t)
	parsed, ok := ParseLine(line)
	if !ok {
		return task.Task{}, fmt.Errorf("append new task: cannot render %q", t.Title)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	abs := s.abs(s.inbox)
	n, err := s.x.Append(ctx, abs, "append", line)
	if err != nil {
		return task.Task{}, err
	}
	s.noteWrite(s.inbox, abs)

	parsed.Source = &task.Provenance{Path: s.inbox, Line: n, Original: line}
	parsed.Notes = t.Notes
	parsed.Modified = time.Now()
	parsed.ID = task.GenerateID(parsed)
	return parsed, nil
}

func applyDateChange(line, marker string, c task.Change[time.Time]) string {
	switch c.Kind() {
	case task.Cleared:
		return setDate(line, marker, nil)
	case task.Set:
		v := c.Value()
		return setDate(line, marker, &v)
	default:
		return line
	}
}

// apply locates t's current line and runs an edit against it, keeping the
// per-run line bookkeeping in step.
func (s *Source) apply(ctx context.Context, t task.Task, action string, mutate func(string) ([]string, error)) (edit.Outcome, error) {
	if t.Source == nil || t.Source.Path == "" {
		return edit.Outcome{}, fmt.Errorf("%s %q: task has no source location", action, t.Title)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rel := t.Source.Path
	key := lineKey{rel, t.Source.Line}
	original := t.Source.Original
	if cur, ok := s.current[key]; ok {
		original = cur
	}
	line := t.Source.Line
	for _, at := range s.shifts[rel] {
		if at <= t.Source.Line {
			line++
		}
	}

	abs := s.abs(rel)
	out, err := s.x.Apply(ctx, edit.Request{
		Action:   action,
		Path:     abs,
		Line:     line,
		Original: original,
		Mutate:   mutate,
	})
	if err != nil {
		return out, err
	}
	if out.Changed {
		s.current[key] = out.After[len(out.After)-1]
		for i := 0; i < out.Inserted; i++ {
			s.shifts[rel] = append(s.shifts[rel], t.Source.Line)
		}
		s.noteWrite(rel, abs)
	}
	return out, nil
}

// noteWrite remembers the mtime our write left behind. Callers hold s.mu.
func (s *Source) noteWrite(rel, abs string) {
	if info, err := os.Stat(abs); err == nil {
		s.ownMtime[rel] = info.ModTime()
	}
}

func (s *Source) abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}
