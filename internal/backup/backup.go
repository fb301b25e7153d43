// Package backup takes timestamped full-file copies of source notes before
// they are mutated, and prunes old copies by count and age.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	stampLayout = "20060102T150405.000000000Z"
	suffix      = ".bak"

	// maxSameStamp bounds the sequence numbers tried for one timestamp.
	maxSameStamp = 1000
)

// Manager writes backups under Dir, one subdirectory per source file.
type Manager struct {
	dir      string
	maxCount int
	maxAge   time.Duration
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager. maxCount <= 0 disables count pruning; maxAge <= 0
// disables age pruning.
func New(dir string, maxCount int, maxAge time.Duration, opts ...Option) *Manager {
	m := &Manager{
		dir:      dir,
		maxCount: maxCount,
		maxAge:   maxAge,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Take copies path into the backup directory and prunes that file's older
// backups. It returns the backup file path.
func (m *Manager) Take(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("backup %s: %w", path, err)
	}
	defer src.Close()

	dir := m.groupDir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("backup %s: create dir: %w", path, err)
	}

	dest, out, err := create(dir, m.now().UTC().Format(stampLayout))
	if err != nil {
		return "", fmt.Errorf("backup %s: %w", path, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dest)
		return "", fmt.Errorf("backup %s: copy: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("backup %s: close: %w", path, err)
	}

	if err := m.pruneDir(dir); err != nil {
		return dest, err
	}
	return dest, nil
}

// Prune applies the count and age limits to every backed-up file.
func (m *Manager) Prune() error {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("prune backups: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := m.pruneDir(filepath.Join(m.dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// List returns the backups of path, oldest first.
func (m *Manager) List(path string) ([]string, error) {
	names, err := backupNames(m.groupDir(path))
	if err != nil {
		return nil, err
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = filepath.Join(m.groupDir(path), n)
	}
	return out, nil
}

func (m *Manager) pruneDir(dir string) error {
	names, err := backupNames(dir)
	if err != nil {
		return err
	}

	cutoff := time.Time{}
	if m.maxAge > 0 {
		cutoff = m.now().Add(-m.maxAge)
	}

	for i, name := range names {
		remaining := len(names) - i
		tooMany := m.maxCount > 0 && remaining > m.maxCount
		tooOld := false
		if !cutoff.IsZero() {
			if ts, err := time.Parse(stampLayout, stampOf(name)); err == nil && ts.Before(cutoff) {
				tooOld = true
			}
		}
		if !tooMany && !tooOld {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("prune backup %s: %w", name, err)
		}
	}
	return nil
}

// create opens a new backup file named <stamp>-<seq>.bak, taking the first
// free sequence number. Names sort in creation order.
func create(dir, stamp string) (string, *os.File, error) {
	for seq := 0; seq < maxSameStamp; seq++ {
		dest := filepath.Join(dir, fmt.Sprintf("%s-%03d%s", stamp, seq, suffix))
		out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return dest, out, nil
		}
		if !os.IsExist(err) {
			return "", nil, err
		}
	}
	return "", nil, fmt.Errorf("more than %d backups stamped %s", maxSameStamp, stamp)
}

// stampOf returns the timestamp part of a backup file name.
func stampOf(name string) string {
	name = strings.TrimSuffix(name, suffix)
	if i := strings.LastIndexByte(name, '-'); i >= 0 {
		name = name[:i]
	}
	return name
}

// groupDir names the per-file backup directory: base name plus a short
// digest of the absolute path, so equal base names in different folders
// never share a directory.
func (m *Manager) groupDir(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	sum := sha256.Sum256([]byte(abs))
	return filepath.Join(m.dir, filepath.Base(path)+"-"+hex.EncodeToString(sum[:4]))
}

// backupNames lists backup file names in dir, oldest first.
func backupNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
