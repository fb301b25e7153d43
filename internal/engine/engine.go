package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/notesync/internal/dedup"
	"github.com/roach88/notesync/internal/mapping"
	"github.com/roach88/notesync/internal/task"
)

// Source is the note collection: the source of truth. Every write must
// honor the surgical edit contract.
type Source interface {
	Scan(ctx context.Context) ([]task.Task, error)
	GenerateID(t task.Task) string
	// MarkComplete returns the number of lines inserted above the task.
	MarkComplete(ctx context.Context, t task.Task, on time.Time) (int, error)
	MarkIncomplete(ctx context.Context, t task.Task) error
	UpdateMetadata(ctx context.Context, t task.Task, u task.MetadataUpdate) error
	AppendNew(ctx context.Context, t task.Task) (task.Task, error)
	HasChangedSince(path string, since time.Time) (bool, error)
}

// Destination is an external task store mirrored into.
type Destination interface {
	FetchAll(ctx context.Context) ([]task.Task, error)
	Create(ctx context.Context, t task.Task) (string, error)
	Update(ctx context.Context, id string, t task.Task) error
	Move(ctx context.Context, id, list string) error
	Delete(ctx context.Context, id string) error
}

// StateStore persists the mapping state between runs.
type StateStore interface {
	Load(ctx context.Context) (*mapping.State, error)
	Save(ctx context.Context, s *mapping.State) error
}

// runTagger is implemented by sources that tag their audit entries with the
// current run id.
type runTagger interface {
	SetRunID(id string)
}

// Writeback toggles the destination-to-source channels.
type Writeback struct {
	Completion bool
	Due        bool
	Start      bool
	Priority   bool
}

// Config controls one run.
type Config struct {
	// DryRun computes and reports every action without performing any.
	DryRun bool
	// SyncCompleted creates destination records for tasks already done.
	SyncCompleted bool
	// AppendNew appends unmatched destination records to the inbox note.
	AppendNew bool
	// Inbox is the inbox note path, relative to the collection root.
	Inbox     string
	Writeback Writeback
}

// SafetyThreshold is the prior mapping count above which a collapsed scan
// aborts the run.
const SafetyThreshold = 10

// Engine reconciles a Source with a Destination.
//
// Thread-safety: Run may be called from any goroutine, but only one run is
// in flight at a time; a concurrent call fails with ALREADY_RUNNING.
type Engine struct {
	src    Source
	dst    Destination
	states StateStore
	runIDs RunIDGenerator
	now    func() time.Time

	running atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithRunIDs sets the run id generator. Default: UUIDv7Generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(e *Engine) { e.runIDs = g }
}

// WithClock sets the wall clock. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine over the given collaborators.
func New(src Source, dst Destination, states StateStore, opts ...Option) *Engine {
	e := &Engine{
		src:    src,
		dst:    dst,
		states: states,
		runIDs: UUIDv7Generator{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run performs one reconciliation.
//
// Only configuration, safety and concurrency problems (returned as *Error)
// or failures to load, fetch or save state abort the run. Everything else is
// recorded per task in the Result.
func (e *Engine) Run(ctx context.Context, cfg Config) (*Result, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, NewAlreadyRunningError()
	}
	defer e.running.Store(false)

	started := e.now()
	runID := e.runIDs.Generate()
	if rt, ok := e.src.(runTagger); ok {
		rt.SetRunID(runID)
	}
	slog.Info("sync started", "run_id", runID, "dry_run", cfg.DryRun)

	// 1. Scan and dedup.
	prior, err := e.states.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	sources, _, err := Collect(ctx, e.src, prior, cfg.Inbox)
	if err != nil {
		return nil, err
	}

	// 3. Safety check, before any destination call.
	if mapped := prior.Len(); mapped > SafetyThreshold && len(sources)*2 < mapped {
		slog.Error("safety abort: source count collapsed",
			"run_id", runID,
			"mapped", mapped,
			"scanned", len(sources))
		return nil, NewSafetyAbortError(mapped, len(sources))
	}

	// 2. Destination snapshot.
	fetched, err := e.dst.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch destination: %w", err)
	}
	dests := make(map[string]task.Task, len(fetched))
	for _, d := range fetched {
		dests[d.ID] = d
	}

	r := &run{
		e:         e,
		cfg:       cfg,
		acc:       newAccumulator(runID, cfg.DryRun),
		prior:     prior,
		state:     prior.Clone(),
		sources:   sources,
		dests:     dests,
		scanStart: started,
		matchSrc:  make(map[string]bool),
		matchDst:  make(map[string]bool),
		claimed:   make(map[string]bool),
		guarded:   make(map[string]error),
	}

	// 4-6. Existing mappings, then unmapped sources, then forward writeback.
	r.reconcileMappings(ctx)
	r.reconcileUnmapped(ctx)
	if cfg.AppendNew {
		r.appendUnmatched(ctx)
	}

	// 7. Persist.
	if !cfg.DryRun {
		r.state.LastSync = e.now()
		if err := e.states.Save(ctx, r.state); err != nil {
			return nil, fmt.Errorf("save state: %w", err)
		}
	}

	res := r.acc.finish(e.now().Sub(started))
	slog.Info("sync finished",
		"run_id", runID,
		"created", res.Created,
		"updated", res.Updated,
		"deleted", res.Deleted,
		"writebacks", res.CompletionWritebacks+res.MetadataWritebacks,
		"errors", res.Errors,
		"duration", res.Duration)
	return res, nil
}

// Collect scans src, assigns source ids and applies both dedup passes.
// prior decides which duplicate is kept when one of them is already mapped.
// A missing or unusable collection is reported as a configuration error.
func Collect(ctx context.Context, src Source, prior *mapping.State, inbox string) (map[string]task.Task, []dedup.Dropped, error) {
	scanned, err := src.Scan(ctx)
	if err != nil {
		if errors.Is(err, ErrCollectionNotFound) || errors.Is(err, ErrCollectionInvalid) {
			return nil, nil, NewConfigError(err)
		}
		return nil, nil, fmt.Errorf("scan source: %w", err)
	}

	sources := make(map[string]task.Task, len(scanned))
	for _, t := range scanned {
		t.ID = src.GenerateID(t)
		if _, dup := sources[t.ID]; dup {
			slog.Debug("identical task line ignored", "title", t.Title, "path", t.Path())
			continue
		}
		sources[t.ID] = t
	}
	sources, dropped := dedup.Run(sources, dedup.Options{
		Inbox: inbox,
		IsMapped: func(id string) bool {
			_, ok := prior.BySource(id)
			return ok
		},
	})
	for _, d := range dropped {
		slog.Debug("duplicate dropped",
			"title", d.Task.Title,
			"path", d.Task.Path(),
			"kept", d.KeptID,
			"reason", d.Reason)
	}
	return sources, dropped, nil
}
