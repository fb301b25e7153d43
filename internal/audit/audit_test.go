package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		out = append(out, e)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestRecordAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.jsonl")
	l := New(path, 0, 0)

	require.NoError(t, l.Record(Entry{Action: "complete", File: "Daily.md", Line: 3, Before: "- [ ] Stretch", After: "- [x] Stretch"}))
	require.NoError(t, l.Record(Entry{Action: "incomplete", File: "Daily.md", Line: 3, Before: "- [x] Stretch", After: "- [ ] Stretch"}))

	entries := readEntries(t, path)
	require.Len(t, entries, 2)
	assert.Equal(t, "complete", entries[0].Action)
	assert.False(t, entries[0].Time.IsZero())
	assert.NotEmpty(t, entries[0].Diff)
	assert.Equal(t, "incomplete", entries[1].Action)
}

func TestRecordRotatesBySize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l := New(path, 300, 2)

	big := strings.Repeat("x", 40)
	for i := 0; i < 6; i++ {
		require.NoError(t, l.Record(Entry{Action: "update", File: "a.md", Before: big, After: big}))
	}

	_, err := os.Stat(path + ".1")
	assert.NoError(t, err, "first rotation file exists")
	_, err = os.Stat(path + ".2")
	assert.NoError(t, err, "second rotation file exists")
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err), "rotation keeps at most maxFiles")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), int64(300))
}

func TestRecordNoDiffForIdenticalText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l := New(path, 0, 0)

	require.NoError(t, l.Record(Entry{Action: "noop", Before: "same", After: "same"}))

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].Diff)
}
