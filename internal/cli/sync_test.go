package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notesync/internal/engine"
	"github.com/roach88/notesync/internal/mirror"
	"github.com/roach88/notesync/internal/task"
	"github.com/roach88/notesync/internal/testutil"
)

const rentNote = `# Daily

- [ ] Pay rent #home 📅 2026-03-01
- [ ] Water plants
`

type syncResponse struct {
	Status string        `json:"status"`
	Data   engine.Result `json:"data"`
	Error  *CLIError     `json:"error"`
}

func decodeSync(t *testing.T, out string) syncResponse {
	t.Helper()
	var resp syncResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

// fixedOpts pins the run id. The clock stays real: the stale-source guard
// compares file mtimes against it.
func fixedOpts(env *testEnv) *RootOptions {
	return &RootOptions{
		ConfigPath: env.config,
		engineOpts: []engine.Option{
			engine.WithRunIDs(testutil.NewRunIDs("run-1")),
		},
	}
}

func TestSyncReport_Text(t *testing.T) {
	res := &engine.Result{
		RunID:                "run-42",
		DryRun:               true,
		Created:              1,
		Updated:              1,
		CompletionWritebacks: 1,
		Skipped:              1,
		Errors:               1,
		Items: []engine.ItemOutcome{
			{Kind: engine.ItemCreated, Title: "Pay rent", Path: "daily.md"},
			{Kind: engine.ItemUpdated, Title: "Water plants", Path: "daily.md"},
			{Kind: engine.ItemCompletionWriteback, Title: "Call mom", Path: "people/mom.md"},
			{Kind: engine.ItemSkipped, Title: "Old chore", Path: "daily.md"},
			{Kind: engine.ItemError, Title: "Broken", Path: "broken.md", Error: "line 3 no longer matches"},
		},
		Conflicts: []engine.Conflict{
			{Title: "Water plants", Path: "daily.md", SourceID: "s1", DestinationID: "d1", Resolution: engine.ResolutionSourceWins},
		},
		Duration: 1234 * time.Microsecond,
	}

	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}
	require.NoError(t, f.Success(syncReport{res}))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "sync_report", buf.Bytes())
}

func TestSyncReport_JSON(t *testing.T) {
	res := &engine.Result{
		RunID:     "run-42",
		Created:   2,
		Items:     []engine.ItemOutcome{{Kind: engine.ItemCreated, Title: "Pay rent"}},
		Conflicts: []engine.Conflict{},
	}

	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}
	require.NoError(t, f.Success(syncReport{res}))

	resp := decodeSync(t, buf.String())
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-42", resp.Data.RunID)
	assert.Equal(t, 2, resp.Data.Created)
	require.Len(t, resp.Data.Items, 1)
	assert.Equal(t, engine.ItemCreated, resp.Data.Items[0].Kind)
}

func TestSync_CreatesThenConverges(t *testing.T) {
	env := newTestEnv(t, "")
	env.writeNote(t, "daily.md", rentNote)
	opts := fixedOpts(env)

	out, err := execute(t, opts, "--format", "json", "sync")
	require.NoError(t, err, out)
	first := decodeSync(t, out)
	assert.Equal(t, "run-1", first.Data.RunID)
	assert.Equal(t, 2, first.Data.Created)

	out, err = execute(t, opts, "--format", "json", "sync")
	require.NoError(t, err, out)
	second := decodeSync(t, out)
	assert.Equal(t, 0, second.Data.Mutations())

	out, err = execute(t, opts, "status")
	require.NoError(t, err, out)
	assert.Contains(t, out, "mappings:   2")
	assert.NotContains(t, out, "never")
}

func TestSync_DryRunFlag(t *testing.T) {
	env := newTestEnv(t, "")
	env.writeNote(t, "daily.md", rentNote)

	out, err := execute(t, fixedOpts(env), "sync", "--dry-run")
	require.NoError(t, err, out)
	assert.Contains(t, out, "(dry run)")
	assert.Contains(t, out, "created")

	out, err = execute(t, fixedOpts(env), "--format", "json", "status")
	require.NoError(t, err, out)
	assert.Contains(t, out, `"mappings": 0`)
}

func TestSync_WritesCompletionBack(t *testing.T) {
	env := newTestEnv(t, "")
	env.writeNote(t, "daily.md", rentNote)
	opts := fixedOpts(env)

	_, err := execute(t, opts, "sync")
	require.NoError(t, err)

	// Complete "Pay rent" in the destination.
	dst, err := mirror.Open(env.mirror)
	require.NoError(t, err)
	all, err := dst.FetchAll(context.Background())
	require.NoError(t, err)
	var rent task.Task
	for _, d := range all {
		if d.Title == "Pay rent" {
			rent = d
		}
	}
	require.NotEmpty(t, rent.ID)
	rent.Completed = true
	rent.CompletedOn = task.DatePtr(2026, 2, 8)
	require.NoError(t, dst.Update(context.Background(), rent.ID, rent))
	require.NoError(t, dst.Close())

	out, err := execute(t, opts, "--format", "json", "sync")
	require.NoError(t, err, out)
	resp := decodeSync(t, out)
	assert.Equal(t, 1, resp.Data.CompletionWritebacks)

	note := env.readNote(t, "daily.md")
	assert.Contains(t, note, "- [x] Pay rent #home 📅 2026-03-01 ✅ 2026-02-08")
	assert.Contains(t, note, "- [ ] Water plants")
}

func TestSync_SafetyAbortExitCode(t *testing.T) {
	env := newTestEnv(t, "")
	var lines []string
	for i := 1; i <= 12; i++ {
		lines = append(lines, fmt.Sprintf("- [ ] Chore %d", i))
	}
	env.writeNote(t, "chores.md", strings.Join(lines, "\n")+"\n")
	opts := fixedOpts(env)

	_, err := execute(t, opts, "sync")
	require.NoError(t, err)

	env.writeNote(t, "chores.md", "- [ ] Chore 1\n")
	out, err := execute(t, opts, "--format", "json", "sync")
	require.Error(t, err)
	assert.Equal(t, ExitSafetyAbort, GetExitCode(err))
	assert.True(t, engine.IsSafetyAbort(err))

	resp := decodeSync(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "SAFETY_ABORT", resp.Error.Code)

	// Nothing was deleted.
	dst, err := mirror.Open(env.mirror)
	require.NoError(t, err)
	defer dst.Close()
	all, err := dst.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 12)
}

func TestSync_MissingVaultIsConfigError(t *testing.T) {
	env := newTestEnv(t, "")
	require.NoError(t, os.RemoveAll(env.vault))

	out, err := execute(t, fixedOpts(env), "sync")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.True(t, engine.IsConfigError(err))
	assert.Contains(t, out, "Error [CONFIG_INVALID]")
}

func TestSync_VerboseListsSkippedTasksOnStderr(t *testing.T) {
	env := newTestEnv(t, "")
	env.writeNote(t, "daily.md", rentNote+"- [x] Old chore ✅ 2026-01-05\n")

	stdout, stderr, err := executeSplit(t, fixedOpts(env), "--format", "json", "--verbose", "sync")
	require.NoError(t, err, stderr)

	resp := decodeSync(t, stdout)
	assert.Equal(t, 2, resp.Data.Created)
	assert.Equal(t, 1, resp.Data.Skipped)
	assert.Contains(t, stderr, "skipped Old chore (daily.md)")
}

func TestSync_QuietWithoutVerbose(t *testing.T) {
	env := newTestEnv(t, "")
	env.writeNote(t, "daily.md", rentNote+"- [x] Old chore ✅ 2026-01-05\n")

	_, stderr, err := executeSplit(t, fixedOpts(env), "sync")
	require.NoError(t, err)
	assert.Empty(t, stderr)
}
