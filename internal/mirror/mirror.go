// Package mirror is a destination task store kept in a local SQLite file.
//
// It stands in for a remote task service: ids are opaque UUIDv7 strings
// assigned on create, and each task belongs to one named list.
package mirror

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/notesync/internal/engine"
	"github.com/roach88/notesync/internal/task"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when an id has no task.
var ErrNotFound = errors.New("task not found")

var _ engine.Destination = (*Store)(nil)

// Store is a SQLite-backed destination.
type Store struct {
	db    *sql.DB
	now   func() time.Time
	newID func() (string, error)
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the modification timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDs overrides the id source.
func WithIDs(next func() (string, error)) Option {
	return func(s *Store) { s.newID = next }
}

func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate task id: %w", err)
	}
	return id.String(), nil
}

// Open creates or opens the mirror database at path.
func Open(path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create mirror directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, q := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		schemaSQL,
	} {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize mirror: %w", err)
		}
	}

	s := &Store{db: db, now: time.Now, newID: newUUIDv7}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// FetchAll returns every task ordered by id.
func (s *Store) FetchAll(ctx context.Context) ([]task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, completed, priority, due, start, scheduled,
		       completed_on, tags, list, notes, recurrence, modified
		FROM tasks
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("fetch tasks: %w", err)
	}
	defer rows.Close()

	var out []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("fetch tasks: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch tasks: %w", err)
	}
	return out, nil
}

// Get returns one task.
func (s *Store) Get(ctx context.Context, id string) (task.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, completed, priority, due, start, scheduled,
		       completed_on, tags, list, notes, recurrence, modified
		FROM tasks
		WHERE id = ?
	`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return task.Task{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return task.Task{}, fmt.Errorf("get %s: %w", id, err)
	}
	return t, nil
}

// Create inserts t under a fresh id and returns the id.
func (s *Store) Create(ctx context.Context, t task.Task) (string, error) {
	id, err := s.newID()
	if err != nil {
		return "", err
	}
	tags, err := encodeTags(t)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks
		(id, title, completed, priority, due, start, scheduled,
		 completed_on, tags, list, notes, recurrence, modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id, t.Title, t.Completed, int(t.Priority),
		nullDate(t.Due), nullDate(t.Start), nullDate(t.Scheduled), nullDate(t.CompletedOn),
		tags, t.List, t.Notes, t.Recurrence, s.stamp(),
	)
	if err != nil {
		return "", fmt.Errorf("create %q: %w", t.Title, err)
	}
	return id, nil
}

// Update overwrites the task's fields. The list is left alone; use Move.
func (s *Store) Update(ctx context.Context, id string, t task.Task) error {
	tags, err := encodeTags(t)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			title = ?, completed = ?, priority = ?, due = ?, start = ?,
			scheduled = ?, completed_on = ?, tags = ?, notes = ?,
			recurrence = ?, modified = ?
		WHERE id = ?
	`,
		t.Title, t.Completed, int(t.Priority),
		nullDate(t.Due), nullDate(t.Start), nullDate(t.Scheduled), nullDate(t.CompletedOn),
		tags, t.Notes, t.Recurrence, s.stamp(), id,
	)
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	return requireOne(res, "update", id)
}

// Move places the task in another list.
func (s *Store) Move(ctx context.Context, id, list string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET list = ?, modified = ? WHERE id = ?`,
		list, s.stamp(), id)
	if err != nil {
		return fmt.Errorf("move %s: %w", id, err)
	}
	return requireOne(res, "move", id)
}

// Delete removes the task.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return requireOne(res, "delete", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (task.Task, error) {
	var (
		t                                  task.Task
		priority                           int
		due, start, scheduled, completedOn sql.NullString
		tags, modified                     string
	)
	if err := r.Scan(&t.ID, &t.Title, &t.Completed, &priority,
		&due, &start, &scheduled, &completedOn,
		&tags, &t.List, &t.Notes, &t.Recurrence, &modified); err != nil {
		return task.Task{}, err
	}
	t.Priority = task.Priority(priority)

	var err error
	for _, f := range []struct {
		col sql.NullString
		dst **time.Time
	}{
		{due, &t.Due},
		{start, &t.Start},
		{scheduled, &t.Scheduled},
		{completedOn, &t.CompletedOn},
	} {
		if !f.col.Valid {
			continue
		}
		d, err := task.ParseDate(f.col.String)
		if err != nil {
			return task.Task{}, fmt.Errorf("task %s: %w", t.ID, err)
		}
		*f.dst = &d
	}

	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return task.Task{}, fmt.Errorf("task %s: tags: %w", t.ID, err)
	}
	if len(t.Tags) == 0 {
		t.Tags = nil
	}
	if t.Modified, err = time.Parse(time.RFC3339Nano, modified); err != nil {
		return task.Task{}, fmt.Errorf("task %s: modified: %w", t.ID, err)
	}
	return t, nil
}

func encodeTags(t task.Task) (string, error) {
	tags := t.SortedTags()
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

func nullDate(d *time.Time) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: task.FormatDate(d), Valid: true}
}

func requireOne(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return nil
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}
