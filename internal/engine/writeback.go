package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/notesync/internal/mapping"
	"github.com/roach88/notesync/internal/recurrence"
	"github.com/roach88/notesync/internal/task"
)

// converge brings a mapped pair back in step. The source wins unless only
// the destination changed, in which case the enabled writeback channels
// carry the destination's values into the note first.
func (r *run) converge(ctx context.Context, m mapping.Mapping, s, d task.Task) {
	srcChanged := task.GenerateHash(s) != m.SourceHash
	dstChanged := task.GenerateHash(d) != m.DestinationHash
	if !srcChanged && !dstChanged && s.Completed == d.Completed {
		return
	}

	merged := s
	switch {
	case srcChanged && dstChanged:
		slog.Warn("task changed on both sides, keeping source",
			"title", s.Title,
			"path", s.Path(),
			"destination_id", d.ID)
		r.acc.conflict(s, d.ID)
	case dstChanged:
		var ok bool
		if merged, ok = r.writeback(ctx, m, s, d); !ok {
			return
		}
	}

	view, ok := r.push(ctx, merged, d)
	if !ok {
		return
	}
	if merged.ID != s.ID {
		r.state.RemoveBySource(s.ID)
	}
	r.state.Upsert(mapping.Mapping{
		SourceID:        merged.ID,
		DestinationID:   d.ID,
		SourceHash:      task.GenerateHash(merged),
		DestinationHash: task.GenerateHash(view),
		LastSync:        r.e.now(),
	})
}

// writeback applies the destination's changes to the source note through
// the enabled channels and returns the source task as it now reads. It
// reports false when the pair must not be pushed this run.
func (r *run) writeback(ctx context.Context, m mapping.Mapping, s, d task.Task) (task.Task, bool) {
	wb := r.cfg.Writeback

	var u task.MetadataUpdate
	if wb.Due && !task.SameDate(s.Due, d.Due) {
		u.Due = task.DateChange(s.Due, d.Due)
	}
	if wb.Start && !task.SameDate(s.Start, d.Start) {
		u.Start = task.DateChange(s.Start, d.Start)
	}
	if wb.Priority && s.Priority != d.Priority {
		if d.Priority == task.PriorityNone {
			u.Priority = task.Clear[task.Priority]()
		} else {
			u.Priority = task.SetTo(d.Priority)
		}
	}
	completion := wb.Completion && s.Completed != d.Completed

	if u.Empty() && !completion {
		return s, true
	}
	if err := r.guard(s); err != nil {
		r.fail(s, err)
		return s, false
	}

	merged := s.Clone()
	if !u.Empty() {
		if !r.cfg.DryRun {
			if err := r.e.src.UpdateMetadata(ctx, s, u); err != nil {
				r.fail(s, fmt.Errorf("metadata writeback: %w", err))
				return s, false
			}
		}
		merged = u.ApplyTo(merged)
		merged.ID = r.e.src.GenerateID(merged)
		r.acc.add(ItemMetadataWriteback, s)
	}

	if completion {
		next, err := r.writeCompletion(ctx, merged, d)
		if err != nil {
			r.fail(s, fmt.Errorf("completion writeback: %w", err))
			if merged.ID != s.ID {
				// The metadata edit landed; follow the task to its new id
				// but leave the destination hash so completion is retried.
				r.state.RemoveBySource(s.ID)
				r.state.Upsert(mapping.Mapping{
					SourceID:        merged.ID,
					DestinationID:   d.ID,
					SourceHash:      task.GenerateHash(merged),
					DestinationHash: m.DestinationHash,
					LastSync:        r.e.now(),
				})
			}
			return merged, false
		}
		merged = next
		r.acc.add(ItemCompletionWriteback, s)
	}
	return merged, true
}

// writeCompletion mirrors d's completion flag onto t. When completing a
// recurring task rolls it over, the returned task is the new open instance.
func (r *run) writeCompletion(ctx context.Context, t, d task.Task) (task.Task, error) {
	out := t.Clone()
	if !d.Completed {
		if !r.cfg.DryRun {
			if err := r.e.src.MarkIncomplete(ctx, t); err != nil {
				return t, err
			}
		}
		out.Completed = false
		out.CompletedOn = nil
		return out, nil
	}

	on := r.e.now()
	if d.CompletedOn != nil {
		on = *d.CompletedOn
	}
	on = task.Truncate(on)

	inserted := 0
	if !r.cfg.DryRun {
		var err error
		if inserted, err = r.e.src.MarkComplete(ctx, t, on); err != nil {
			return t, err
		}
	}
	out.Completed = true
	out.CompletedOn = &on

	if inserted > 0 {
		if next, ok := nextInstance(t, on); ok {
			next.ID = r.e.src.GenerateID(next)
			slog.Info("recurring task rolled over",
				"title", t.Title,
				"path", t.Path(),
				"due", task.FormatDate(next.Due))
			return next, nil
		}
	}
	return out, nil
}

// nextInstance is the open successor a rollover inserts into the note.
func nextInstance(t task.Task, completedOn time.Time) (task.Task, bool) {
	dates, ok := recurrence.Roll(t, completedOn)
	if !ok {
		return task.Task{}, false
	}
	next := t.Clone()
	next.Completed = false
	next.CompletedOn = nil
	next.Due = dates.Due
	next.Start = dates.Start
	next.Scheduled = dates.Scheduled
	return next, true
}

// guard checks once per task that its note has not changed since the scan
// started.
func (r *run) guard(s task.Task) error {
	if err, seen := r.guarded[s.ID]; seen {
		return err
	}
	var err error
	if p := s.Path(); p != "" {
		changed, cerr := r.e.src.HasChangedSince(p, r.scanStart)
		switch {
		case cerr != nil:
			err = fmt.Errorf("check %s: %w", p, cerr)
		case changed:
			err = &StaleSourceError{Path: p, Title: s.Title}
		}
	}
	r.guarded[s.ID] = err
	return err
}
