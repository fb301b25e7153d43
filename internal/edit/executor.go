package edit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/notesync/internal/audit"
)

// Backuper takes a full-file backup and returns its location.
type Backuper interface {
	Take(path string) (string, error)
}

// Auditor records one mutation.
type Auditor interface {
	Record(e audit.Entry) error
}

// Suppressor is told about self-modified paths so the resulting change
// notification can be ignored.
type Suppressor interface {
	Suppress(path string)
}

// Request describes one line edit.
type Request struct {
	// Action names the mutation in the audit log ("complete", "set-due", ...).
	Action string
	Path   string
	// Line is the 1-based line number of the target.
	Line int
	// Original is the line text captured at scan time.
	Original string
	// Mutate receives the current target line (without line terminator) and
	// returns its replacement. Extra lines returned before the last one are
	// inserted above it; the last line replaces the target.
	Mutate func(line string) ([]string, error)
}

// Outcome reports what an edit did.
type Outcome struct {
	Before   string
	After    []string
	Inserted int
	Changed  bool
	Backup   string
}

// Executor applies guarded edits. Collaborators are optional.
type Executor struct {
	backups Backuper
	audit   Auditor
	watch   Suppressor
	runID   string
}

// Option configures an Executor.
type Option func(*Executor)

// WithBackups sets the backup collaborator.
func WithBackups(b Backuper) Option { return func(x *Executor) { x.backups = b } }

// WithAudit sets the audit collaborator.
func WithAudit(a Auditor) Option { return func(x *Executor) { x.audit = a } }

// WithSuppressor sets the file-watch collaborator.
func WithSuppressor(s Suppressor) Option { return func(x *Executor) { x.watch = s } }

// New creates an Executor.
func New(opts ...Option) *Executor {
	x := &Executor{}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// SetRunID tags subsequent audit entries with a sync run id.
func (x *Executor) SetRunID(id string) {
	x.runID = id
}

// Apply performs req under the edit contract.
func (x *Executor) Apply(ctx context.Context, req Request) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if req.Mutate == nil {
		return Outcome{}, fmt.Errorf("edit %s: no mutation given", req.Path)
	}

	doc, err := readDocument(req.Path)
	if err != nil {
		return Outcome{}, err
	}

	current, ok := doc.line(req.Line)
	if !ok || strings.TrimSpace(current) != strings.TrimSpace(req.Original) {
		return Outcome{}, &ContentMismatchError{
			Path:     req.Path,
			Line:     req.Line,
			Expected: req.Original,
			Actual:   current,
		}
	}

	replacement, err := req.Mutate(current)
	if err != nil {
		return Outcome{}, fmt.Errorf("edit %s:%d: %w", req.Path, req.Line, err)
	}
	if len(replacement) == 0 {
		return Outcome{}, fmt.Errorf("edit %s:%d: mutation returned no lines", req.Path, req.Line)
	}

	out := Outcome{
		Before:   current,
		After:    replacement,
		Inserted: len(replacement) - 1,
	}
	if out.Inserted == 0 && replacement[0] == current {
		return out, nil
	}

	if out.Backup, err = x.backup(req.Path); err != nil {
		return Outcome{}, err
	}

	doc.replace(req.Line, replacement)
	if err := doc.write(req.Path); err != nil {
		return Outcome{}, err
	}
	out.Changed = true

	for i, l := range replacement[:out.Inserted] {
		x.record(audit.Entry{Action: "insert", File: req.Path, Line: req.Line + i, After: l})
	}
	x.record(audit.Entry{
		Action: req.Action,
		File:   req.Path,
		Line:   req.Line + out.Inserted,
		Before: current,
		After:  replacement[out.Inserted],
	})
	x.suppress(req.Path)

	return out, nil
}

// Append adds line at the end of path, creating the file when missing. It
// returns the 1-based line number of the appended line.
func (x *Executor) Append(ctx context.Context, path, action, line string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	doc, err := readDocument(path)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return 0, fmt.Errorf("append %s: %w", path, err)
		}
		doc = &document{mode: 0o644}
	case err != nil:
		return 0, err
	default:
		if _, err := x.backup(path); err != nil {
			return 0, err
		}
	}

	lineNo := doc.append(line)
	if err := doc.write(path); err != nil {
		return 0, err
	}

	x.record(audit.Entry{Action: action, File: path, Line: lineNo, After: line})
	x.suppress(path)
	return lineNo, nil
}

func (x *Executor) backup(path string) (string, error) {
	if x.backups == nil {
		return "", nil
	}
	dest, err := x.backups.Take(path)
	if err != nil {
		return "", fmt.Errorf("edit %s: backup failed: %w", path, err)
	}
	return dest, nil
}

// record never fails an edit that already reached disk.
func (x *Executor) record(e audit.Entry) {
	if x.audit == nil {
		return
	}
	e.RunID = x.runID
	if err := x.audit.Record(e); err != nil {
		slog.Error("audit record failed", "file", e.File, "line", e.Line, "error", err)
	}
}

func (x *Executor) suppress(path string) {
	if x.watch != nil {
		x.watch.Suppress(path)
	}
}
