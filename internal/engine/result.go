package engine

import (
	"time"

	"github.com/roach88/notesync/internal/task"
)

// ItemKind classifies one per-task outcome.
type ItemKind string

const (
	ItemCreated             ItemKind = "created"
	ItemUpdated             ItemKind = "updated"
	ItemDeleted             ItemKind = "deleted"
	ItemCompletionWriteback ItemKind = "completion-writeback"
	ItemMetadataWriteback   ItemKind = "metadata-writeback"
	ItemAppended            ItemKind = "appended"
	ItemSkipped             ItemKind = "skipped"
	ItemError               ItemKind = "error"
)

// ItemOutcome is one action taken (or, in a dry run, planned) for a task.
type ItemOutcome struct {
	Kind  ItemKind `json:"kind"`
	Title string   `json:"title"`
	Path  string   `json:"path,omitempty"`
	Error string   `json:"error,omitempty"`
}

// ResolutionSourceWins is the only conflict resolution applied.
const ResolutionSourceWins = "source-wins"

// Conflict records a task changed on both sides since the last sync.
type Conflict struct {
	Title         string `json:"title"`
	Path          string `json:"path,omitempty"`
	SourceID      string `json:"source_id"`
	DestinationID string `json:"destination_id"`
	Resolution    string `json:"resolution"`
}

// Result summarizes one sync run.
type Result struct {
	RunID  string `json:"run_id"`
	DryRun bool   `json:"dry_run"`

	Created              int `json:"created"`
	Updated              int `json:"updated"`
	Deleted              int `json:"deleted"`
	CompletionWritebacks int `json:"completion_writebacks"`
	MetadataWritebacks   int `json:"metadata_writebacks"`
	Appended             int `json:"appended"`
	Skipped              int `json:"skipped"`
	Errors               int `json:"errors"`

	Items     []ItemOutcome `json:"items"`
	Conflicts []Conflict    `json:"conflicts"`
	Duration  time.Duration `json:"duration_ns"`
}

// Mutations returns the number of create, update and delete actions.
func (r *Result) Mutations() int {
	return r.Created + r.Updated + r.Deleted
}

// accumulator collects outcomes during a run. The Result is built once,
// by finish, and not touched afterwards.
type accumulator struct {
	res Result
}

func newAccumulator(runID string, dryRun bool) *accumulator {
	return &accumulator{res: Result{
		RunID:     runID,
		DryRun:    dryRun,
		Items:     []ItemOutcome{},
		Conflicts: []Conflict{},
	}}
}

func (a *accumulator) add(kind ItemKind, t task.Task) {
	a.res.Items = append(a.res.Items, ItemOutcome{Kind: kind, Title: t.Title, Path: t.Path()})
	switch kind {
	case ItemCreated:
		a.res.Created++
	case ItemUpdated:
		a.res.Updated++
	case ItemDeleted:
		a.res.Deleted++
	case ItemCompletionWriteback:
		a.res.CompletionWritebacks++
	case ItemMetadataWriteback:
		a.res.MetadataWritebacks++
	case ItemAppended:
		a.res.Appended++
	case ItemSkipped:
		a.res.Skipped++
	}
}

func (a *accumulator) fail(t task.Task, err error) {
	a.res.Items = append(a.res.Items, ItemOutcome{
		Kind:  ItemError,
		Title: t.Title,
		Path:  t.Path(),
		Error: err.Error(),
	})
	a.res.Errors++
}

func (a *accumulator) conflict(s task.Task, dstID string) {
	a.res.Conflicts = append(a.res.Conflicts, Conflict{
		Title:         s.Title,
		Path:          s.Path(),
		SourceID:      s.ID,
		DestinationID: dstID,
		Resolution:    ResolutionSourceWins,
	})
}

func (a *accumulator) finish(elapsed time.Duration) *Result {
	res := a.res
	res.Duration = elapsed
	return &res
}
