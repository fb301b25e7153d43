package harness

import (
	"github.com/roach88/notesync/internal/engine"
	"github.com/roach88/notesync/internal/task"
)

// RunRecord is what one sync run of a scenario produced.
type RunRecord struct {
	Name string
	// Result is nil when the run failed.
	Result *engine.Result
	// ErrCode is the engine error code of a failed run, or "ERROR" for an
	// uncoded failure.
	ErrCode string
	Err     error
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every run expectation and assertion matched.
	Pass bool

	// Runs holds one record per scenario run, in order.
	Runs []RunRecord

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string

	// Notes is the final content of every note in the vault.
	Notes map[string]string

	// Destination is the final destination content.
	Destination []task.Task

	// Mappings is the final mapping count.
	Mappings int
}

// NewResult creates a new passing result.
// Used as the starting point for scenario execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
		Notes:  make(map[string]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
