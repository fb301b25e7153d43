// Package audit keeps an append-only JSON-lines log of every mutation made to
// a source note. The log rotates by size: when the active file would exceed
// the limit it is renamed to <path>.1, shifting older files up to MaxFiles.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Entry is one recorded mutation.
type Entry struct {
	Time   time.Time `json:"time"`
	RunID  string    `json:"run_id,omitempty"`
	Action string    `json:"action"`
	File   string    `json:"file"`
	Line   int       `json:"line"`
	Before string    `json:"before"`
	After  string    `json:"after"`
	// Diff is a compact diffmatchpatch delta from Before to After.
	Diff string `json:"diff,omitempty"`
}

// Log is a size-rotated audit log. Safe for concurrent use.
type Log struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	maxFiles int
	now      func() time.Time
}

// New creates a Log writing to path. maxBytes <= 0 disables rotation.
// maxFiles is the number of rotated files kept besides the active one.
func New(path string, maxBytes int64, maxFiles int) *Log {
	return &Log{
		path:     path,
		maxBytes: maxBytes,
		maxFiles: maxFiles,
		now:      time.Now,
	}
}

// Path returns the active log file path.
func (l *Log) Path() string {
	return l.path
}

// Record appends e to the log, filling Time and Diff when empty.
func (l *Log) Record(e Entry) error {
	if e.Time.IsZero() {
		e.Time = l.now().UTC()
	}
	if e.Diff == "" && e.Before != e.After {
		e.Diff = delta(e.Before, e.After)
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("audit: create dir: %w", err)
	}
	if err := l.rotateIfNeeded(int64(len(line))); err != nil {
		return err
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("audit: write: %w", err)
	}
	return f.Close()
}

func (l *Log) rotateIfNeeded(incoming int64) error {
	if l.maxBytes <= 0 {
		return nil
	}
	info, err := os.Stat(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("audit: stat: %w", err)
	}
	if info.Size() == 0 || info.Size()+incoming <= l.maxBytes {
		return nil
	}

	if l.maxFiles <= 0 {
		if err := os.Remove(l.path); err != nil {
			return fmt.Errorf("audit: truncate: %w", err)
		}
		return nil
	}

	oldest := fmt.Sprintf("%s.%d", l.path, l.maxFiles)
	if err := os.Remove(oldest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("audit: drop %s: %w", oldest, err)
	}
	for i := l.maxFiles - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", l.path, i)
		to := fmt.Sprintf("%s.%d", l.path, i+1)
		if err := os.Rename(from, to); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("audit: rotate %s: %w", from, err)
		}
	}
	if err := os.Rename(l.path, l.path+".1"); err != nil {
		return fmt.Errorf("audit: rotate: %w", err)
	}
	return nil
}

func delta(before, after string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	return dmp.DiffToDelta(dmp.DiffCleanupSemantic(diffs))
}
