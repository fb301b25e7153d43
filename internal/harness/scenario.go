package harness

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/notesync/internal/config"
	"github.com/roach88/notesync/internal/task"
)

// Scenario defines an end-to-end sync scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Inbox is the note receiving appended tasks. Defaults to Inbox.md.
	Inbox string `yaml:"inbox,omitempty"`

	// Sync holds the run switches, decoded over the config defaults.
	Sync config.Sync `yaml:"sync"`

	// Notes seeds the vault: relative path to file content.
	Notes map[string]string `yaml:"notes"`

	// Runs are executed in order against the same vault and destination.
	Runs []RunStep `yaml:"runs"`

	// Assertions validate the state left after the last run.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// RunStep is one sync run plus the edits made before it.
type RunStep struct {
	// Name labels the run in the golden snapshot.
	Name string `yaml:"name,omitempty"`

	// Notes replaces note content before the run. An empty string deletes
	// the note.
	Notes map[string]string `yaml:"notes,omitempty"`

	// Destination edits are applied directly to the destination records.
	Destination []DestinationEdit `yaml:"destination,omitempty"`

	// Expect is checked against the run's Result.
	Expect *Expect `yaml:"expect,omitempty"`
}

// DestinationEdit changes, creates or deletes one destination record.
// Existing records are selected by title; nil fields are left alone.
type DestinationEdit struct {
	Title       string  `yaml:"title"`
	Create      bool    `yaml:"create,omitempty"`
	Delete      bool    `yaml:"delete,omitempty"`
	Completed   *bool   `yaml:"completed,omitempty"`
	CompletedOn *string `yaml:"completed_on,omitempty"`
	Due         *string `yaml:"due,omitempty"`
	Start       *string `yaml:"start,omitempty"`
	Priority    *string `yaml:"priority,omitempty"`
	List        *string `yaml:"list,omitempty"`
	Notes       *string `yaml:"notes,omitempty"`
}

// Expect is a subset match on a run's Result. Only set fields are checked.
type Expect struct {
	Created              *int `yaml:"created,omitempty"`
	Updated              *int `yaml:"updated,omitempty"`
	Deleted              *int `yaml:"deleted,omitempty"`
	CompletionWritebacks *int `yaml:"completion_writebacks,omitempty"`
	MetadataWritebacks   *int `yaml:"metadata_writebacks,omitempty"`
	Appended             *int `yaml:"appended,omitempty"`
	Skipped              *int `yaml:"skipped,omitempty"`
	Errors               *int `yaml:"errors,omitempty"`
	Conflicts            *int `yaml:"conflicts,omitempty"`

	// Error is the engine error code the run must fail with.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the final notes, destination or state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "note_contains": Note includes Text
	// - "note_absent": Note does not include Text
	// - "destination_count": Destination holds Count records
	// - "destination_task": Record titled Title matches Expect
	// - "mapping_count": State holds Count mappings
	Type string `yaml:"type"`

	Note  string `yaml:"note,omitempty"`
	Text  string `yaml:"text,omitempty"`
	Title string `yaml:"title,omitempty"`
	Count int    `yaml:"count,omitempty"`

	// Expect holds field values for destination_task. Keys: completed,
	// completed_on, due, start, scheduled, priority, list, recurrence.
	Expect map[string]string `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertNoteContains     = "note_contains"
	AssertNoteAbsent       = "note_absent"
	AssertDestinationCount = "destination_count"
	AssertDestinationTask  = "destination_task"
	AssertMappingCount     = "mapping_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	scenario := Scenario{Sync: config.Default().Sync}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if scenario.Inbox == "" {
		scenario.Inbox = "Inbox.md"
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Runs) == 0 {
		return fmt.Errorf("runs list is required and must be non-empty")
	}

	for p := range s.Notes {
		if err := validNotePath(p); err != nil {
			return fmt.Errorf("notes: %w", err)
		}
	}
	for i, run := range s.Runs {
		for p := range run.Notes {
			if err := validNotePath(p); err != nil {
				return fmt.Errorf("runs[%d].notes: %w", i, err)
			}
		}
		for j, e := range run.Destination {
			if err := validateEdit(e); err != nil {
				return fmt.Errorf("runs[%d].destination[%d]: %w", i, j, err)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validNotePath(p string) error {
	if p == "" || path.IsAbs(p) || path.Clean(p) != p || p == ".." || strings.HasPrefix(p, "../") {
		return fmt.Errorf("invalid note path %q", p)
	}
	return nil
}

func validateEdit(e DestinationEdit) error {
	if e.Title == "" {
		return fmt.Errorf("title is required")
	}
	if e.Create && e.Delete {
		return fmt.Errorf("create and delete are exclusive")
	}
	for _, d := range []*string{e.CompletedOn, e.Due, e.Start} {
		if d == nil || *d == "" {
			continue
		}
		if _, err := task.ParseDate(*d); err != nil {
			return fmt.Errorf("invalid date %q", *d)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertNoteContains, AssertNoteAbsent:
		if a.Note == "" || a.Text == "" {
			return fmt.Errorf("assertions[%d]: note and text are required for %s", index, a.Type)
		}
	case AssertDestinationCount, AssertMappingCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertDestinationTask:
		if a.Title == "" {
			return fmt.Errorf("assertions[%d]: title is required for destination_task", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for destination_task", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
