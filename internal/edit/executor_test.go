package edit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notesync/internal/audit"
	"github.com/roach88/notesync/internal/backup"
)

type fakeBackuper struct{ taken []string }

func (f *fakeBackuper) Take(path string) (string, error) {
	f.taken = append(f.taken, path)
	return path + ".bak", nil
}

type fakeAuditor struct{ entries []audit.Entry }

func (f *fakeAuditor) Record(e audit.Entry) error {
	f.entries = append(f.entries, e)
	return nil
}

type fakeSuppressor struct{ paths []string }

func (f *fakeSuppressor) Suppress(path string) { f.paths = append(f.paths, path) }

type harness struct {
	x       *Executor
	backups *fakeBackuper
	audit   *fakeAuditor
	watch   *fakeSuppressor
}

func newHarness() *harness {
	h := &harness{backups: &fakeBackuper{}, audit: &fakeAuditor{}, watch: &fakeSuppressor{}}
	h.x = New(WithBackups(h.backups), WithAudit(h.audit), WithSuppressor(h.watch))
	return h
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Daily.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func checkbox(line string) ([]string, error) {
	return []string{strings.Replace(line, "[ ]", "[x]", 1)}, nil
}

func TestApplyMutatesOnlyTargetLine(t *testing.T) {
	content := "# Today\n\n- [ ] Stretch 📅 2026-02-09\n- [ ] Read\n"
	path := writeFile(t, content)
	h := newHarness()

	out, err := h.x.Apply(context.Background(), Request{
		Action:   "complete",
		Path:     path,
		Line:     3,
		Original: "- [ ] Stretch 📅 2026-02-09",
		Mutate:   checkbox,
	})
	require.NoError(t, err)

	assert.True(t, out.Changed)
	assert.Equal(t, 0, out.Inserted)
	assert.Equal(t, "# Today\n\n- [x] Stretch 📅 2026-02-09\n- [ ] Read\n", readFile(t, path))

	assert.Equal(t, []string{path}, h.backups.taken)
	require.Len(t, h.audit.entries, 1)
	assert.Equal(t, "complete", h.audit.entries[0].Action)
	assert.Equal(t, 3, h.audit.entries[0].Line)
	assert.Equal(t, "- [ ] Stretch 📅 2026-02-09", h.audit.entries[0].Before)
	assert.Equal(t, "- [x] Stretch 📅 2026-02-09", h.audit.entries[0].After)
	assert.Equal(t, []string{path}, h.watch.paths)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), "file mode is preserved")
}

func TestApplyTwiceBacksUpBothVersions(t *testing.T) {
	path := writeFile(t, "- [ ] Stretch\n- [ ] Read\n")
	fixed := time.Date(2026, 2, 8, 9, 0, 0, 0, time.UTC)
	backups := backup.New(t.TempDir(), 0, 0, backup.WithClock(func() time.Time { return fixed }))
	x := New(WithBackups(backups))

	for i, line := range []string{"- [ ] Stretch", "- [ ] Read"} {
		_, err := x.Apply(context.Background(), Request{
			Action:   "complete",
			Path:     path,
			Line:     i + 1,
			Original: line,
			Mutate:   checkbox,
		})
		require.NoError(t, err)
	}
	assert.Equal(t, "- [x] Stretch\n- [x] Read\n", readFile(t, path))

	list, err := backups.List(path)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "- [ ] Stretch\n- [ ] Read\n", readFile(t, list[0]))
	assert.Equal(t, "- [x] Stretch\n- [ ] Read\n", readFile(t, list[1]))
}

func TestApplyRejectsStaleOriginal(t *testing.T) {
	content := "- [ ] Stretch for 10 minutes\n- [ ] Read\n"
	path := writeFile(t, content)
	h := newHarness()

	_, err := h.x.Apply(context.Background(), Request{
		Action:   "complete",
		Path:     path,
		Line:     1,
		Original: "- [ ] Stretch",
		Mutate:   checkbox,
	})

	require.Error(t, err)
	assert.True(t, IsContentMismatch(err))
	var cm *ContentMismatchError
	require.True(t, errors.As(err, &cm))
	assert.Equal(t, "- [ ] Stretch for 10 minutes", cm.Actual)

	assert.Equal(t, content, readFile(t, path), "file must be byte-for-byte unchanged")
	assert.Empty(t, h.backups.taken)
	assert.Empty(t, h.audit.entries)
	assert.Empty(t, h.watch.paths)
}

func TestApplyRejectsOutOfRangeLine(t *testing.T) {
	path := writeFile(t, "- [ ] Only\n")
	h := newHarness()

	_, err := h.x.Apply(context.Background(), Request{Path: path, Line: 7, Original: "- [ ] Only", Mutate: checkbox})

	assert.True(t, IsContentMismatch(err))
}

func TestApplyComparesTrimmedLines(t *testing.T) {
	path := writeFile(t, "  - [ ] Indented  \n")
	h := newHarness()

	_, err := h.x.Apply(context.Background(), Request{Path: path, Line: 1, Original: "- [ ] Indented", Mutate: checkbox})
	require.NoError(t, err)

	assert.Equal(t, "  - [x] Indented  \n", readFile(t, path))
}

func TestApplyInsertsAboveAndReportsCount(t *testing.T) {
	path := writeFile(t, "- [ ] Water plants 🔁 every week 📅 2026-02-09\n- [ ] Other\n")
	h := newHarness()

	out, err := h.x.Apply(context.Background(), Request{
		Action:   "complete",
		Path:     path,
		Line:     1,
		Original: "- [ ] Water plants 🔁 every week 📅 2026-02-09",
		Mutate: func(line string) ([]string, error) {
			next := strings.Replace(line, "2026-02-09", "2026-02-16", 1)
			done := strings.Replace(line, "[ ]", "[x]", 1) + " ✅ 2026-02-09"
			return []string{next, done}, nil
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, out.Inserted)
	assert.Equal(t,
		"- [ ] Water plants 🔁 every week 📅 2026-02-16\n"+
			"- [x] Water plants 🔁 every week 📅 2026-02-09 ✅ 2026-02-09\n"+
			"- [ ] Other\n",
		readFile(t, path))
	require.Len(t, h.audit.entries, 2)
	assert.Equal(t, "insert", h.audit.entries[0].Action)
	assert.Equal(t, 1, h.audit.entries[0].Line)
	assert.Equal(t, 2, h.audit.entries[1].Line)
	assert.Len(t, h.backups.taken, 1, "one backup per edit")
}

func TestApplyPreservesCRLFAndMissingTrailingNewline(t *testing.T) {
	path := writeFile(t, "- [ ] One\r\n- [ ] Two")
	h := newHarness()

	_, err := h.x.Apply(context.Background(), Request{Path: path, Line: 1, Original: "- [ ] One", Mutate: checkbox})
	require.NoError(t, err)
	_, err = h.x.Apply(context.Background(), Request{Path: path, Line: 2, Original: "- [ ] Two", Mutate: checkbox})
	require.NoError(t, err)

	assert.Equal(t, "- [x] One\r\n- [x] Two", readFile(t, path))
}

func TestApplyNoopSkipsWrite(t *testing.T) {
	path := writeFile(t, "- [x] Done\n")
	h := newHarness()

	out, err := h.x.Apply(context.Background(), Request{Path: path, Line: 1, Original: "- [x] Done", Mutate: checkbox})
	require.NoError(t, err)

	assert.False(t, out.Changed)
	assert.Empty(t, h.backups.taken)
	assert.Empty(t, h.audit.entries)
}

func TestApplyMutationErrorWritesNothing(t *testing.T) {
	content := "- [ ] One\n"
	path := writeFile(t, content)
	h := newHarness()

	_, err := h.x.Apply(context.Background(), Request{
		Path:     path,
		Line:     1,
		Original: "- [ ] One",
		Mutate:   func(string) ([]string, error) { return nil, errors.New("no marker") },
	})

	require.Error(t, err)
	assert.Equal(t, content, readFile(t, path))
}

func TestApplyCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Apply(ctx, Request{Path: "x", Line: 1, Mutate: checkbox})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAppend(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		line    int
	}{
		{"trailing newline", "# Inbox\n", "# Inbox\n- [ ] New\n", 2},
		{"no trailing newline", "# Inbox", "# Inbox\n- [ ] New", 2},
		{"empty file", "", "- [ ] New\n", 1},
		{"crlf", "# Inbox\r\n", "# Inbox\r\n- [ ] New\r\n", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.content)
			h := newHarness()

			line, err := h.x.Append(context.Background(), path, "append", "- [ ] New")
			require.NoError(t, err)

			assert.Equal(t, tt.line, line)
			assert.Equal(t, tt.want, readFile(t, path))
			assert.Len(t, h.backups.taken, 1)
			require.Len(t, h.audit.entries, 1)
			assert.Equal(t, tt.line, h.audit.entries[0].Line)
		})
	}
}

func TestAppendCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "Inbox.md")
	h := newHarness()

	line, err := h.x.Append(context.Background(), path, "append", "- [ ] New")
	require.NoError(t, err)

	assert.Equal(t, 1, line)
	assert.Equal(t, "- [ ] New\n", readFile(t, path))
	assert.Empty(t, h.backups.taken, "nothing to back up for a new file")
}

func TestSuppressionList(t *testing.T) {
	s := NewSuppressionList(time.Second)
	now := time.Date(2026, 2, 8, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	assert.False(t, s.Suppressed("/vault/a.md"))

	s.Suppress("/vault/./a.md")
	assert.True(t, s.Suppressed("/vault/a.md"))

	now = now.Add(2 * time.Second)
	assert.False(t, s.Suppressed("/vault/a.md"), "entries expire after the ttl")
}
