package harness

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/notesync/internal/task"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("Assertion failed: %s\n  Expected: %s\n  Actual: %s", e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions checks every assertion against the final state and
// returns one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertNoteContains, AssertNoteAbsent:
		return assertNote(result, a)
	case AssertDestinationCount:
		if got := len(result.Destination); got != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d destination task(s)", a.Count),
				Actual:   fmt.Sprintf("%d: %s", got, titles(result.Destination)),
			}
		}
		return nil
	case AssertDestinationTask:
		return assertDestinationTask(result, a)
	case AssertMappingCount:
		if result.Mappings != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d mapping(s)", a.Count),
				Actual:   fmt.Sprintf("%d mapping(s)", result.Mappings),
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertNote(result *Result, a Assertion) error {
	content, ok := result.Notes[a.Note]
	if !ok {
		return &AssertionError{Type: a.Type, Expected: "note " + a.Note, Actual: "note missing"}
	}
	has := strings.Contains(content, a.Text)
	switch {
	case a.Type == AssertNoteContains && !has:
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s contains %q", a.Note, a.Text), Actual: content}
	case a.Type == AssertNoteAbsent && has:
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s lacks %q", a.Note, a.Text), Actual: content}
	}
	return nil
}

func assertDestinationTask(result *Result, a Assertion) error {
	var found *task.Task
	for i := range result.Destination {
		if result.Destination[i].Title == a.Title {
			found = &result.Destination[i]
			break
		}
	}
	if found == nil {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("destination task %q", a.Title),
			Actual:   titles(result.Destination),
		}
	}

	fields := destinationFields(*found)
	for _, key := range sortedKeys(a.Expect) {
		got, known := fields[key]
		if !known {
			return fmt.Errorf("unknown destination field %q", key)
		}
		if want := a.Expect[key]; got != want {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s.%s = %q", a.Title, key, want),
				Actual:   fmt.Sprintf("%q", got),
			}
		}
	}
	return nil
}

// destinationFields renders the comparable fields of t as strings.
func destinationFields(t task.Task) map[string]string {
	return map[string]string{
		"completed":    strconv.FormatBool(t.Completed),
		"completed_on": task.FormatDate(t.CompletedOn),
		"due":          task.FormatDate(t.Due),
		"start":        task.FormatDate(t.Start),
		"scheduled":    task.FormatDate(t.Scheduled),
		"priority":     t.Priority.String(),
		"list":         t.List,
		"recurrence":   t.Recurrence,
	}
}

func titles(ts []task.Task) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.Title
	}
	return "[" + strings.Join(names, ", ") + "]"
}
