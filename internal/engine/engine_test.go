package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notesync/internal/mapping"
	"github.com/roach88/notesync/internal/task"
	"github.com/roach88/notesync/internal/testutil"
)

var syncTime = time.Date(2026, 2, 8, 9, 0, 0, 0, time.UTC)

type fixture struct {
	src    *testutil.Source
	dst    *testutil.Destination
	states *testutil.StateStore
	clock  *testutil.Clock
	eng    *Engine
}

func newFixture(t *testing.T, tasks ...task.Task) *fixture {
	t.Helper()
	f := &fixture{
		src:    testutil.NewSource(tasks...),
		dst:    testutil.NewDestination(),
		states: testutil.NewStateStore(nil),
		clock:  testutil.NewClock(syncTime),
	}
	f.eng = New(f.src, f.dst, f.states,
		WithRunIDs(testutil.NewRunIDs("run-1")),
		WithClock(f.clock.Now),
	)
	return f
}

func (f *fixture) run(t *testing.T, cfg Config) *Result {
	t.Helper()
	res, err := f.eng.Run(context.Background(), cfg)
	require.NoError(t, err)
	return res
}

// dstFor returns the destination record mapped to the source task titled
// title.
func (f *fixture) dstFor(t *testing.T, title string) task.Task {
	t.Helper()
	st := f.states.State()
	for _, s := range f.src.Tasks() {
		if s.Title != title {
			continue
		}
		if m, ok := st.BySource(s.ID); ok {
			d, ok := f.dst.Get(m.DestinationID)
			require.True(t, ok, "mapped record %s missing", m.DestinationID)
			return d
		}
	}
	t.Fatalf("no mapped destination record for %q", title)
	return task.Task{}
}

func rent() task.Task {
	return task.Task{
		Title:      "Pay rent",
		Tags:       []string{"home"},
		Priority:   task.PriorityHigh,
		Due:        task.DatePtr(2026, time.February, 9),
		Recurrence: "every month when done",
	}
}

func plants() task.Task {
	return task.Task{Title: "Water plants", Due: task.DatePtr(2026, time.February, 10)}
}

var allWriteback = Writeback{Completion: true, Due: true, Start: true, Priority: true}

func TestRun_CreatesUnmappedTasks(t *testing.T) {
	f := newFixture(t, rent(), plants())

	res := f.run(t, Config{})

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 0, res.Errors)
	assert.Equal(t, 2, f.dst.Len())
	assert.Equal(t, 2, f.states.State().Len())
	assert.Equal(t, syncTime, f.states.State().LastSync)

	d := f.dstFor(t, "Pay rent")
	assert.Equal(t, task.PriorityHigh, d.Priority)
	assert.Equal(t, "2026-02-09", task.FormatDate(d.Due))
	assert.Equal(t, "Source: notes.md", d.Notes)
}

func TestRun_SecondRunIsNoop(t *testing.T) {
	f := newFixture(t, rent(), plants())
	f.run(t, Config{Writeback: allWriteback})
	f.dst.ResetCalls()

	res := f.run(t, Config{Writeback: allWriteback})

	assert.Equal(t, 0, res.Mutations())
	assert.Equal(t, 0, res.CompletionWritebacks+res.MetadataWritebacks)
	assert.Empty(t, f.dst.Writes())
	assert.Empty(t, f.src.Calls())
}

func TestRun_DryRunMutatesNothing(t *testing.T) {
	f := newFixture(t, rent(), plants())
	f.run(t, Config{})
	f.dst.ResetCalls()

	f.src.Add(task.Task{Title: "New idea"})
	d := f.dstFor(t, "Water plants")
	d.Completed = true
	f.dst.Put(d)
	before := f.states.State()

	res := f.run(t, Config{DryRun: true, Writeback: allWriteback})

	assert.True(t, res.DryRun)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.CompletionWritebacks)
	assert.Empty(t, f.dst.Writes())
	assert.Empty(t, f.src.Calls())
	assert.Equal(t, 1, f.states.Saves())
	assert.Equal(t, before.All(), f.states.State().All())
}

func TestRun_SafetyAbort(t *testing.T) {
	f := newFixture(t, rent(), plants(), task.Task{Title: "c"}, task.Task{Title: "d"})
	st := mapping.New()
	for i := 0; i < 11; i++ {
		st.Upsert(mapping.Mapping{
			SourceID:      fmt.Sprintf("src-%02d", i),
			DestinationID: fmt.Sprintf("dst-%02d", i),
		})
	}
	f.states = testutil.NewStateStore(st)
	f.eng = New(f.src, f.dst, f.states, WithRunIDs(testutil.NewRunIDs("")))

	res, err := f.eng.Run(context.Background(), Config{})

	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, IsSafetyAbort(err))
	assert.Empty(t, f.dst.Calls())
	assert.Empty(t, f.src.Calls())
	assert.Equal(t, 0, f.states.Saves())
}

func TestRun_NoSafetyAbortAtThreshold(t *testing.T) {
	f := newFixture(t)
	st := mapping.New()
	for i := 0; i < SafetyThreshold; i++ {
		st.Upsert(mapping.Mapping{
			SourceID:      fmt.Sprintf("src-%02d", i),
			DestinationID: fmt.Sprintf("dst-%02d", i),
		})
	}
	f.states = testutil.NewStateStore(st)
	f.eng = New(f.src, f.dst, f.states, WithRunIDs(testutil.NewRunIDs("")))

	_, err := f.eng.Run(context.Background(), Config{})

	require.NoError(t, err)
	assert.Equal(t, 0, f.states.State().Len(), "mappings absent on both sides are collected")
}

func TestRun_ConfigError(t *testing.T) {
	f := newFixture(t, rent())
	f.src.ScanErr = fmt.Errorf("scan /vault: %w", ErrCollectionNotFound)

	_, err := f.eng.Run(context.Background(), Config{})

	assert.True(t, IsConfigError(err))
	assert.True(t, errors.Is(err, ErrCollectionNotFound))
	assert.Empty(t, f.dst.Calls())
}

type blockingSource struct {
	*testutil.Source
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSource) Scan(ctx context.Context) ([]task.Task, error) {
	close(b.entered)
	<-b.release
	return b.Source.Scan(ctx)
}

func TestRun_AlreadyRunning(t *testing.T) {
	src := &blockingSource{
		Source:  testutil.NewSource(rent()),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	eng := New(src, testutil.NewDestination(), testutil.NewStateStore(nil), WithRunIDs(NewFixedGenerator("run-1", "run-2")))

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = eng.Run(context.Background(), Config{})
	}()
	<-src.entered

	_, err := eng.Run(context.Background(), Config{})
	assert.True(t, IsAlreadyRunning(err))

	close(src.release)
	wg.Wait()
	require.NoError(t, firstErr)
}

func TestRun_DeletesWhenSourceGone(t *testing.T) {
	f := newFixture(t, rent(), plants())
	f.run(t, Config{})

	f.src.Remove(1)
	res := f.run(t, Config{})

	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 1, f.dst.Len())
	assert.Equal(t, 1, f.states.State().Len())
}

func TestRun_EditedSourceRelinks(t *testing.T) {
	f := newFixture(t, rent(), plants())
	f.run(t, Config{})
	f.dst.ResetCalls()

	edited := plants()
	edited.Due = task.DatePtr(2026, time.February, 14)
	f.src.Set(1, edited)

	res := f.run(t, Config{})

	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 0, res.Deleted)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 2, f.dst.Len())
	assert.Equal(t, "2026-02-14", task.FormatDate(f.dstFor(t, "Water plants").Due))

	res = f.run(t, Config{})
	assert.Equal(t, 0, res.Mutations())
}

func TestRun_SourceChangeIsPushed(t *testing.T) {
	f := newFixture(t, rent(), plants())
	f.run(t, Config{})

	done := plants()
	done.Completed = true
	done.CompletedOn = task.DatePtr(2026, time.February, 8)
	f.src.Set(1, done)

	res := f.run(t, Config{})

	assert.Equal(t, 1, res.Updated)
	d := f.dstFor(t, "Water plants")
	assert.True(t, d.Completed)
	assert.Equal(t, "2026-02-08", task.FormatDate(d.CompletedOn))
}

func TestRun_CompletionWriteback(t *testing.T) {
	f := newFixture(t, rent(), plants())
	f.run(t, Config{})

	d := f.dstFor(t, "Water plants")
	d.Completed = true
	d.CompletedOn = task.DatePtr(2026, time.February, 8)
	f.dst.Put(d)
	f.dst.ResetCalls()

	res := f.run(t, Config{Writeback: allWriteback})

	assert.Equal(t, 1, res.CompletionWritebacks)
	assert.Equal(t, 0, res.Updated)
	require.Len(t, f.src.Calls(), 1)
	assert.Equal(t, "complete", f.src.Calls()[0].Op)
	assert.True(t, f.src.Tasks()[1].Completed)

	res = f.run(t, Config{Writeback: allWriteback})
	assert.Equal(t, 0, res.Mutations())
	assert.Equal(t, 0, res.CompletionWritebacks)
}

func TestRun_CompletionWritebackRollsOver(t *testing.T) {
	f := newFixture(t, rent())
	f.run(t, Config{})

	d := f.dstFor(t, "Pay rent")
	d.Completed = true
	d.CompletedOn = task.DatePtr(2026, time.February, 8)
	f.dst.Put(d)

	res := f.run(t, Config{Writeback: allWriteback})

	assert.Equal(t, 1, res.CompletionWritebacks)
	assert.Equal(t, 1, res.Updated, "destination record follows the next instance")
	require.Len(t, f.src.Tasks(), 2)

	got, ok := f.dst.Get(d.ID)
	require.True(t, ok)
	assert.False(t, got.Completed)
	assert.Equal(t, "2026-03-08", task.FormatDate(got.Due))

	res = f.run(t, Config{Writeback: allWriteback})
	assert.Equal(t, 0, res.Mutations())
	assert.Equal(t, 0, res.CompletionWritebacks)
	assert.Equal(t, 1, f.dst.Len())
}

func TestRun_WritebackDisabledSourceWins(t *testing.T) {
	f := newFixture(t, plants())
	f.run(t, Config{})

	d := f.dstFor(t, "Water plants")
	d.Completed = true
	f.dst.Put(d)

	res := f.run(t, Config{})

	assert.Equal(t, 0, res.CompletionWritebacks)
	assert.Equal(t, 1, res.Updated)
	assert.Empty(t, f.src.Calls())
	got, _ := f.dst.Get(d.ID)
	assert.False(t, got.Completed)
}

func TestRun_MetadataWriteback(t *testing.T) {
	f := newFixture(t, rent(), plants())
	f.run(t, Config{})

	d := f.dstFor(t, "Water plants")
	d.Due = task.DatePtr(2026, time.February, 12)
	d.Priority = task.PriorityLow
	f.dst.Put(d)
	f.dst.ResetCalls()

	res := f.run(t, Config{Writeback: allWriteback})

	assert.Equal(t, 1, res.MetadataWritebacks)
	assert.Equal(t, 0, res.Mutations())
	require.Len(t, f.src.Calls(), 1)
	call := f.src.Calls()[0]
	assert.Equal(t, "metadata", call.Op)
	assert.Equal(t, task.Set, call.Update.Due.Kind())
	assert.Equal(t, task.Set, call.Update.Priority.Kind())
	assert.Equal(t, task.Unchanged, call.Update.Start.Kind())

	s := f.src.Tasks()[1]
	assert.Equal(t, "2026-02-12", task.FormatDate(s.Due))
	assert.Equal(t, task.PriorityLow, s.Priority)
	_, ok := f.states.State().BySource(s.ID)
	assert.True(t, ok, "mapping follows the new source id")

	res = f.run(t, Config{Writeback: allWriteback})
	assert.Equal(t, 0, res.Mutations())
	assert.Equal(t, 0, res.MetadataWritebacks)
}

func TestRun_MetadataWritebackClearsDate(t *testing.T) {
	withStart := plants()
	withStart.Start = task.DatePtr(2026, time.February, 1)
	f := newFixture(t, withStart)
	f.run(t, Config{})

	d := f.dstFor(t, "Water plants")
	d.Start = nil
	f.dst.Put(d)

	f.run(t, Config{Writeback: Writeback{Start: true}})

	require.Len(t, f.src.Calls(), 1)
	assert.Equal(t, task.Cleared, f.src.Calls()[0].Update.Start.Kind())
	assert.Nil(t, f.src.Tasks()[0].Start)
}

func TestRun_StaleSourceSkipsWriteback(t *testing.T) {
	f := newFixture(t, plants())
	f.run(t, Config{})

	d := f.dstFor(t, "Water plants")
	d.Completed = true
	f.dst.Put(d)
	f.dst.ResetCalls()
	f.src.Changed["notes.md"] = true

	res := f.run(t, Config{Writeback: allWriteback})

	assert.Equal(t, 1, res.Errors)
	require.Len(t, res.Items, 1)
	assert.Equal(t, ItemError, res.Items[0].Kind)
	assert.Contains(t, res.Items[0].Error, "changed since scan")
	assert.Empty(t, f.src.Calls())
	assert.Empty(t, f.dst.Writes())

	f.src.Changed["notes.md"] = false
	res = f.run(t, Config{Writeback: allWriteback})
	assert.Equal(t, 1, res.CompletionWritebacks)
}

func TestRun_ConflictSourceWins(t *testing.T) {
	f := newFixture(t, plants())
	f.run(t, Config{})

	done := plants()
	done.Completed = true
	f.src.Set(0, done)

	d := f.dstFor(t, "Water plants")
	d.Due = task.DatePtr(2026, time.March, 1)
	f.dst.Put(d)

	res := f.run(t, Config{Writeback: allWriteback})

	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, ResolutionSourceWins, res.Conflicts[0].Resolution)
	assert.Equal(t, d.ID, res.Conflicts[0].DestinationID)
	assert.Empty(t, f.src.Calls())

	got, _ := f.dst.Get(d.ID)
	assert.True(t, got.Completed)
	assert.Equal(t, "2026-02-10", task.FormatDate(got.Due))
}

func TestRun_SkipsCompletedUnlessConfigured(t *testing.T) {
	done := task.Task{Title: "Old chore", Completed: true}

	f := newFixture(t, done)
	res := f.run(t, Config{})
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 0, f.dst.Len())

	f = newFixture(t, done)
	res = f.run(t, Config{SyncCompleted: true})
	assert.Equal(t, 1, res.Created)
}

func TestRun_ReconnectsByTitlePreferringList(t *testing.T) {
	s := plants()
	s.List = "Home"
	f := newFixture(t, s)
	f.dst.Put(task.Task{ID: "dst-a", Title: "Water plants", List: "Work"})
	f.dst.Put(task.Task{ID: "dst-b", Title: "Water plants", List: "Home"})

	res := f.run(t, Config{})

	assert.Equal(t, 0, res.Created)
	m, ok := f.states.State().BySource(f.src.Tasks()[0].ID)
	require.True(t, ok)
	assert.Equal(t, "dst-b", m.DestinationID)
}

func TestRun_DestinationIDChurnRelinks(t *testing.T) {
	f := newFixture(t, plants())
	f.run(t, Config{})

	old := f.dstFor(t, "Water plants")
	require.NoError(t, f.dst.Delete(context.Background(), old.ID))
	old.ID = ""
	fresh := f.dst.Put(old)
	f.dst.ResetCalls()

	res := f.run(t, Config{})

	assert.Equal(t, 0, res.Created)
	assert.Empty(t, f.dst.Writes())
	m, ok := f.states.State().BySource(f.src.Tasks()[0].ID)
	require.True(t, ok)
	assert.Equal(t, fresh, m.DestinationID)
}

func TestRun_MovesToSourceList(t *testing.T) {
	f := newFixture(t, plants())
	f.run(t, Config{})

	moved := plants()
	moved.List = "Garden"
	f.src.Set(0, moved)

	res := f.run(t, Config{})

	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, "Garden", f.dstFor(t, "Water plants").List)
}

func TestRun_TagFormOfListKeepsDestinationList(t *testing.T) {
	milk := task.Task{Title: "Buy milk", List: "Home-Errands"}
	f := newFixture(t, milk)
	f.dst.Put(task.Task{ID: "dst-milk", Title: "Buy milk", List: "Home Errands"})

	f.run(t, Config{})

	milk.Due = task.DatePtr(2026, time.March, 1)
	f.src.Set(0, milk)
	f.dst.ResetCalls()

	res := f.run(t, Config{})

	assert.Equal(t, 0, res.Errors)
	assert.Equal(t, 1, res.Updated)
	d := f.dstFor(t, "Buy milk")
	assert.Equal(t, "Home Errands", d.List)
	assert.True(t, task.SameDate(milk.Due, d.Due))
	for _, c := range f.dst.Writes() {
		assert.NotEqual(t, "move", c.Op)
	}
}

func TestRun_AppendNew(t *testing.T) {
	f := newFixture(t, plants())
	f.dst.Put(task.Task{ID: "dst-phone", Title: "Call plumber", Priority: task.PriorityMedium})
	f.dst.Put(task.Task{ID: "dst-done", Title: "Already done", Completed: true})

	cfg := Config{AppendNew: true, Inbox: "Inbox.md"}
	res := f.run(t, cfg)

	assert.Equal(t, 1, res.Appended)
	assert.Equal(t, 1, res.Created)
	require.Len(t, f.src.Tasks(), 2)
	added := f.src.Tasks()[1]
	assert.Equal(t, "Call plumber", added.Title)
	assert.Equal(t, "Inbox.md", added.Path())

	m, ok := f.states.State().BySource(added.ID)
	require.True(t, ok)
	assert.Equal(t, "dst-phone", m.DestinationID)

	res = f.run(t, cfg)
	assert.Equal(t, 0, res.Mutations())
	assert.Equal(t, 0, res.Appended)
}

func TestRun_PerTaskErrorsDoNotAbort(t *testing.T) {
	f := newFixture(t, rent(), plants())
	f.dst.FailOps["create"] = errors.New("service unavailable")

	res := f.run(t, Config{})

	assert.Equal(t, 2, res.Errors)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 0, f.states.State().Len())
	for _, item := range res.Items {
		assert.Equal(t, ItemError, item.Kind)
		assert.Contains(t, item.Error, "service unavailable")
	}
}

func TestRun_DedupBeforeMatching(t *testing.T) {
	open := task.Task{Title: "Call mom", Source: &task.Provenance{Path: "a.md", Line: 1}}
	done := task.Task{Title: "Call mom", Completed: true, Source: &task.Provenance{Path: "a.md", Line: 2}}
	f := newFixture(t, open, done)

	res := f.run(t, Config{SyncCompleted: true})

	assert.Equal(t, 1, res.Created)
	require.Equal(t, 1, f.dst.Len())
	d, _ := f.dst.Get("dst-001")
	assert.False(t, d.Completed)
}
