package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/notesync/internal/mapping"
)

//go:embed schema.sql
var schemaSQL string

const metaLastSync = "last_sync"

// Store provides durable storage for the sync mapping state.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
// Missing parent directories are created. A fresh database is stamped with
// the current schema version.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load reads the persisted mapping state.
//
// State written under an older schema version is discarded: the tables are
// cleared, the version is bumped, and an empty state is returned.
func (s *Store) Load(ctx context.Context) (*mapping.State, error) {
	version, err := s.schemaVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if version > mapping.SchemaVersion {
		return nil, fmt.Errorf("load state: schema version %d is newer than supported %d", version, mapping.SchemaVersion)
	}
	if version < mapping.SchemaVersion {
		slog.Warn("discarding sync state from older schema",
			"stored_version", version,
			"current_version", mapping.SchemaVersion)
		if err := s.reset(ctx); err != nil {
			return nil, fmt.Errorf("load state: %w", err)
		}
		return mapping.New(), nil
	}

	st := mapping.New()

	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, destination_id, source_hash, destination_hash, last_sync
		FROM mappings
		ORDER BY source_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load state: query mappings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m mapping.Mapping
		var lastSync string
		if err := rows.Scan(&m.SourceID, &m.DestinationID, &m.SourceHash, &m.DestinationHash, &lastSync); err != nil {
			return nil, fmt.Errorf("load state: scan mapping: %w", err)
		}
		if m.LastSync, err = parseTime(lastSync); err != nil {
			return nil, fmt.Errorf("load state: mapping %s: %w", m.SourceID, err)
		}
		st.Upsert(m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load state: iterate mappings: %w", err)
	}

	var lastSync string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM sync_meta WHERE key = ?`, metaLastSync).Scan(&lastSync)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, fmt.Errorf("load state: read last sync: %w", err)
	default:
		if st.LastSync, err = parseTime(lastSync); err != nil {
			return nil, fmt.Errorf("load state: last sync: %w", err)
		}
	}

	return st, nil
}

// Save atomically replaces the persisted state with st.
func (s *Store) Save(ctx context.Context, st *mapping.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save state: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `DELETE FROM mappings`); err != nil {
		return fmt.Errorf("save state: clear mappings: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO mappings
		(source_id, destination_id, source_hash, destination_hash, last_sync)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("save state: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range st.All() {
		if _, err := stmt.ExecContext(ctx,
			m.SourceID,
			m.DestinationID,
			m.SourceHash,
			m.DestinationHash,
			formatTime(m.LastSync),
		); err != nil {
			return fmt.Errorf("save state: insert mapping %s: %w", m.SourceID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sync_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, metaLastSync, formatTime(st.LastSync)); err != nil {
		return fmt.Errorf("save state: write last sync: %w", err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", mapping.SchemaVersion)); err != nil {
		return fmt.Errorf("save state: set user_version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save state: commit: %w", err)
	}
	return nil
}

// reset clears every persisted row and stamps the current schema version.
func (s *Store) reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reset: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM mappings`,
		`DELETE FROM sync_meta`,
		fmt.Sprintf("PRAGMA user_version = %d", mapping.SchemaVersion),
	} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("reset: %q: %w", q, err)
		}
	}
	return tx.Commit()
}

func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return version, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and stamps a fresh
// database with the current schema version. Idempotent.
func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if version == 0 {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", mapping.SchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
