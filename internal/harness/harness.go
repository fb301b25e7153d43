package harness

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/roach88/notesync/internal/config"
	"github.com/roach88/notesync/internal/edit"
	"github.com/roach88/notesync/internal/engine"
	"github.com/roach88/notesync/internal/markdown"
	"github.com/roach88/notesync/internal/task"
	"github.com/roach88/notesync/internal/testutil"
)

// RunID is the run id stamped on every scenario run.
const RunID = "scenario-run"

// Harness holds the collaborators of one scenario execution.
type Harness struct {
	vault  string
	dst    *testutil.Destination
	states *testutil.StateStore
	engine *engine.Engine
	cfg    engine.Config
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh temp vault. Execution flow:
// 1. Write the seed notes
// 2. For each run: apply note and destination edits, sync, check Expect
// 3. Evaluate assertions against the final state
func Run(scenario *Scenario) (*Result, error) {
	vault, err := os.MkdirTemp("", "notesync-scenario-")
	if err != nil {
		return nil, fmt.Errorf("failed to create vault: %w", err)
	}
	defer os.RemoveAll(vault)

	h := newHarness(vault, scenario)
	ctx := context.Background()

	if err := h.writeNotes(scenario.Notes); err != nil {
		return nil, fmt.Errorf("failed to seed notes: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Runs {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("run %d", i+1)
		}
		if err := h.writeNotes(step.Notes); err != nil {
			return nil, fmt.Errorf("%s: failed to edit notes: %w", name, err)
		}
		for j, e := range step.Destination {
			if err := h.editDestination(ctx, e); err != nil {
				return nil, fmt.Errorf("%s: destination[%d]: %w", name, j, err)
			}
		}

		rec := RunRecord{Name: name}
		rec.Result, rec.Err = h.engine.Run(ctx, h.cfg)
		if rec.Err != nil {
			rec.ErrCode = errorCode(rec.Err)
		}
		result.Runs = append(result.Runs, rec)

		for _, msg := range checkExpect(name, step.Expect, rec) {
			result.AddError(msg)
		}
	}

	if err := h.snapshot(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to snapshot final state: %w", err)
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(vault string, s *Scenario) *Harness {
	cfg := config.Config{Inbox: s.Inbox, Sync: s.Sync}
	src := markdown.New(vault, edit.New(), markdown.WithInbox(s.Inbox))
	dst := testutil.NewDestination()
	states := testutil.NewStateStore(nil)
	return &Harness{
		vault:  vault,
		dst:    dst,
		states: states,
		engine: engine.New(src, dst, states, engine.WithRunIDs(testutil.NewRunIDs(RunID))),
		cfg:    cfg.EngineConfig(),
	}
}

// writeNotes writes each note, deleting those with empty content.
func (h *Harness) writeNotes(notes map[string]string) error {
	for _, rel := range sortedKeys(notes) {
		abs := filepath.Join(h.vault, filepath.FromSlash(rel))
		content := notes[rel]
		if content == "" {
			if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// editDestination applies one edit directly to the destination records.
func (h *Harness) editDestination(ctx context.Context, e DestinationEdit) error {
	if e.Create {
		t := task.Task{Title: e.Title}
		applyEdit(&t, e)
		h.dst.Put(t)
		return nil
	}

	all, err := h.dst.FetchAll(ctx)
	if err != nil {
		return err
	}
	for _, t := range all {
		if t.Title != e.Title {
			continue
		}
		if e.Delete {
			return h.dst.Delete(ctx, t.ID)
		}
		applyEdit(&t, e)
		h.dst.Put(t)
		return nil
	}
	return fmt.Errorf("no destination task titled %q", e.Title)
}

func applyEdit(t *task.Task, e DestinationEdit) {
	if e.Completed != nil {
		t.Completed = *e.Completed
		if !t.Completed {
			t.CompletedOn = nil
		}
	}
	if e.CompletedOn != nil {
		t.CompletedOn = parseOptionalDate(*e.CompletedOn)
	}
	if e.Due != nil {
		t.Due = parseOptionalDate(*e.Due)
	}
	if e.Start != nil {
		t.Start = parseOptionalDate(*e.Start)
	}
	if e.Priority != nil {
		t.Priority = task.ParsePriority(*e.Priority)
	}
	if e.List != nil {
		t.List = *e.List
	}
	if e.Notes != nil {
		t.Notes = *e.Notes
	}
}

// parseOptionalDate returns nil for "", the date otherwise. Dates were
// checked by validateEdit.
func parseOptionalDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	d, err := task.ParseDate(s)
	if err != nil {
		return nil
	}
	return &d
}

// snapshot records the final notes, destination and mapping count.
func (h *Harness) snapshot(ctx context.Context, result *Result) error {
	err := filepath.WalkDir(h.vault, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(h.vault, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		result.Notes[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		return err
	}

	all, err := h.dst.FetchAll(ctx)
	if err != nil {
		return err
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Title != all[j].Title {
			return all[i].Title < all[j].Title
		}
		return all[i].ID < all[j].ID
	})
	result.Destination = all
	result.Mappings = h.states.State().Len()
	return nil
}

// checkExpect compares a run against its expectation.
func checkExpect(name string, want *Expect, rec RunRecord) []string {
	if want == nil {
		if rec.Err != nil {
			return []string{fmt.Sprintf("%s: unexpected error: %v", name, rec.Err)}
		}
		return nil
	}
	if want.Error != "" {
		if rec.ErrCode != want.Error {
			return []string{fmt.Sprintf("%s: expected error %s, got %q", name, want.Error, rec.ErrCode)}
		}
		return nil
	}
	if rec.Err != nil {
		return []string{fmt.Sprintf("%s: unexpected error: %v", name, rec.Err)}
	}

	res := rec.Result
	checks := []struct {
		field string
		want  *int
		got   int
	}{
		{"created", want.Created, res.Created},
		{"updated", want.Updated, res.Updated},
		{"deleted", want.Deleted, res.Deleted},
		{"completion_writebacks", want.CompletionWritebacks, res.CompletionWritebacks},
		{"metadata_writebacks", want.MetadataWritebacks, res.MetadataWritebacks},
		{"appended", want.Appended, res.Appended},
		{"skipped", want.Skipped, res.Skipped},
		{"errors", want.Errors, res.Errors},
		{"conflicts", want.Conflicts, len(res.Conflicts)},
	}
	var errs []string
	for _, c := range checks {
		if c.want != nil && *c.want != c.got {
			errs = append(errs, fmt.Sprintf("%s: expected %s=%d, got %d", name, c.field, *c.want, c.got))
		}
	}
	return errs
}

func errorCode(err error) string {
	var e *engine.Error
	if errors.As(err, &e) {
		return string(e.Code)
	}
	return "ERROR"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
