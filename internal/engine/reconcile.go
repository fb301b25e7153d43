package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/roach88/notesync/internal/mapping"
	"github.com/roach88/notesync/internal/task"
)

// run holds the working state of one Engine.Run.
type run struct {
	e   *Engine
	cfg Config
	acc *accumulator

	prior *mapping.State // as loaded; decides which records are unmapped
	state *mapping.State // mutated during the run, saved at the end

	sources map[string]task.Task // post-dedup, by source id
	dests   map[string]task.Task // by destination id

	scanStart time.Time
	matchSrc  map[string]bool  // source ids paired this run
	matchDst  map[string]bool  // destination ids paired or deleted this run
	claimed   map[string]bool  // destination ids taken by a relink this run
	guarded   map[string]error // guard outcome per source id
}

// reconcileMappings walks every prior mapping.
func (r *run) reconcileMappings(ctx context.Context) {
	for _, m := range r.prior.All() {
		if cur, ok := r.state.BySource(m.SourceID); !ok || cur.DestinationID != m.DestinationID {
			continue
		}

		s, hasSrc := r.sources[m.SourceID]
		d, hasDst := r.dests[m.DestinationID]
		switch {
		case hasSrc && hasDst:
			r.matchSrc[s.ID] = true
			r.matchDst[d.ID] = true
			r.converge(ctx, m, s, d)
		case hasSrc:
			r.matchSrc[s.ID] = true
			r.sourceOnly(ctx, s)
		case hasDst:
			r.destinationOnly(ctx, m, d)
		default:
			slog.Debug("mapping collected", "source_id", m.SourceID, "destination_id", m.DestinationID)
			r.state.RemoveBySource(m.SourceID)
		}
	}
}

// sourceOnly handles a mapped task whose destination record disappeared.
func (r *run) sourceOnly(ctx context.Context, s task.Task) {
	if d, ok := r.findDestination(s); ok {
		slog.Info("relinked to destination with same title", "title", s.Title, "destination_id", d.ID)
		r.relink(ctx, s, d)
		return
	}
	r.state.RemoveBySource(s.ID)
	r.create(ctx, s)
}

// destinationOnly handles a mapping whose source task disappeared, most
// often because an edit changed its id.
func (r *run) destinationOnly(ctx context.Context, m mapping.Mapping, d task.Task) {
	if r.claimed[d.ID] {
		r.state.RemoveBySource(m.SourceID)
		return
	}
	if s, ok := r.findSource(d); ok {
		slog.Info("relinked to edited source task", "title", s.Title, "path", s.Path(), "destination_id", d.ID)
		r.state.RemoveBySource(m.SourceID)
		r.relink(ctx, s, d)
		return
	}

	r.matchDst[d.ID] = true
	if r.cfg.DryRun {
		r.acc.add(ItemDeleted, d)
		return
	}
	if err := r.e.dst.Delete(ctx, d.ID); err != nil {
		r.fail(d, fmt.Errorf("delete: %w", err))
		return
	}
	r.state.RemoveBySource(m.SourceID)
	r.acc.add(ItemDeleted, d)
}

// reconcileUnmapped creates or reconnects source tasks with no mapping.
func (r *run) reconcileUnmapped(ctx context.Context) {
	for _, s := range sortedSources(r.sources) {
		if r.matchSrc[s.ID] {
			continue
		}
		if _, ok := r.state.BySource(s.ID); ok {
			continue
		}
		if s.Completed && !r.cfg.SyncCompleted {
			r.acc.add(ItemSkipped, s)
			continue
		}
		if d, ok := r.findDestination(s); ok {
			slog.Info("reconnected to existing destination record", "title", s.Title, "destination_id", d.ID)
			r.relink(ctx, s, d)
			continue
		}
		r.create(ctx, s)
	}
}

// appendUnmatched writes destination-only records into the inbox note.
func (r *run) appendUnmatched(ctx context.Context) {
	ids := make([]string, 0, len(r.dests))
	for id := range r.dests {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		d := r.dests[id]
		if r.matchDst[id] || d.Completed {
			continue
		}
		if _, ok := r.state.ByDestination(id); ok {
			continue
		}
		if r.cfg.DryRun {
			r.acc.add(ItemAppended, d)
			continue
		}

		t, err := r.e.src.AppendNew(ctx, d)
		if err != nil {
			r.fail(d, fmt.Errorf("append: %w", err))
			continue
		}
		t.ID = r.e.src.GenerateID(t)
		r.matchDst[id] = true
		r.state.Upsert(mapping.Mapping{
			SourceID:        t.ID,
			DestinationID:   id,
			SourceHash:      task.GenerateHash(t),
			DestinationHash: task.GenerateHash(d),
			LastSync:        r.e.now(),
		})
		r.acc.add(ItemAppended, t)
	}
}

func (r *run) create(ctx context.Context, s task.Task) {
	r.matchSrc[s.ID] = true
	view := destinationView(s, "")
	if r.cfg.DryRun {
		r.acc.add(ItemCreated, s)
		return
	}

	id, err := r.e.dst.Create(ctx, view)
	if err != nil {
		r.fail(s, fmt.Errorf("create: %w", err))
		return
	}
	r.matchDst[id] = true
	r.state.Upsert(mapping.Mapping{
		SourceID:        s.ID,
		DestinationID:   id,
		SourceHash:      task.GenerateHash(s),
		DestinationHash: task.GenerateHash(view),
		LastSync:        r.e.now(),
	})
	r.acc.add(ItemCreated, s)
}

// relink maps s to the existing record d, pushing s over it if they differ.
func (r *run) relink(ctx context.Context, s task.Task, d task.Task) {
	r.matchSrc[s.ID] = true
	r.matchDst[d.ID] = true
	r.claimed[d.ID] = true

	view, ok := r.push(ctx, s, d)
	if !ok {
		return
	}
	r.state.Upsert(mapping.Mapping{
		SourceID:        s.ID,
		DestinationID:   d.ID,
		SourceHash:      task.GenerateHash(s),
		DestinationHash: task.GenerateHash(view),
		LastSync:        r.e.now(),
	})
}

// push makes d match s and returns the destination's expected new state.
func (r *run) push(ctx context.Context, s task.Task, d task.Task) (task.Task, bool) {
	view := destinationView(s, d.List)
	view.ID = d.ID
	if task.GenerateHash(view) == task.GenerateHash(d) {
		return view, true
	}
	if r.cfg.DryRun {
		r.acc.add(ItemUpdated, s)
		return view, true
	}

	if err := r.e.dst.Update(ctx, d.ID, view); err != nil {
		r.fail(s, fmt.Errorf("update: %w", err))
		return task.Task{}, false
	}
	if view.List != d.List {
		if err := r.e.dst.Move(ctx, d.ID, view.List); err != nil {
			r.fail(s, fmt.Errorf("move to %q: %w", view.List, err))
			return task.Task{}, false
		}
	}
	r.acc.add(ItemUpdated, s)
	return view, true
}

func (r *run) fail(t task.Task, err error) {
	slog.Error("task sync failed", "title", t.Title, "path", t.Path(), "error", err)
	r.acc.fail(t, err)
}

// findDestination picks an unmatched destination record with s's title,
// preferring one in the same list.
func (r *run) findDestination(s task.Task) (task.Task, bool) {
	var best task.Task
	found := false
	for _, d := range r.dests {
		if d.Title != s.Title || r.matchDst[d.ID] {
			continue
		}
		if _, mapped := r.prior.ByDestination(d.ID); mapped {
			continue
		}
		if !found || betterDestination(d, best, s.List) {
			best, found = d, true
		}
	}
	return best, found
}

func betterDestination(d, best task.Task, list string) bool {
	dl, bl := task.SameList(d.List, list), task.SameList(best.List, list)
	if dl != bl {
		return dl
	}
	return d.ID < best.ID
}

// findSource scores unmatched source tasks against d: equal title is
// required (10), the same list adds 5, and d's notes naming the task's file
// add 3. Ties go to the smallest id.
func (r *run) findSource(d task.Task) (task.Task, bool) {
	var best task.Task
	bestScore := 0
	for _, s := range r.sources {
		if s.Title != d.Title || r.matchSrc[s.ID] {
			continue
		}
		if _, mapped := r.prior.BySource(s.ID); mapped {
			continue
		}
		score := 10
		if task.SameList(s.List, d.List) {
			score += 5
		}
		if p := s.Path(); p != "" && strings.Contains(d.Notes, p) {
			score += 3
		}
		if score > bestScore || (score == bestScore && s.ID < best.ID) {
			best, bestScore = s, score
		}
	}
	return best, bestScore > 0
}

// SourceRefPrefix starts the line appended to destination notes that names
// the task's source note.
const SourceRefPrefix = "Source: "

// destinationView is what the destination should hold for s. An empty list,
// or one naming the same list as the hint, keeps the record's current list.
func destinationView(s task.Task, list string) task.Task {
	v := s.Clone()
	v.ID = ""
	v.Source = nil
	v.Modified = time.Time{}
	if v.List == "" || task.SameList(v.List, list) {
		v.List = list
	}
	if p := s.Path(); p != "" {
		ref := SourceRefPrefix + p
		switch {
		case v.Notes == "":
			v.Notes = ref
		case !strings.Contains(v.Notes, ref):
			v.Notes += "\n\n" + ref
		}
	}
	return v
}

func sortedSources(m map[string]task.Task) []task.Task {
	out := make([]task.Task, 0, len(m))
	for _, t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Path() != b.Path() {
			return a.Path() < b.Path()
		}
		if a.Source != nil && b.Source != nil && a.Source.Line != b.Source.Line {
			return a.Source.Line < b.Source.Line
		}
		return a.ID < b.ID
	})
	return out
}
