package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/notesync/internal/task"
)

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares the given result's snapshot against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(Snapshot(name, result)))
}

// Snapshot renders the runs, final destination and final notes as text.
// Item errors are left out: they may name temp paths.
func Snapshot(name string, result *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)

	b.WriteString("\n== runs ==\n")
	for _, rec := range result.Runs {
		if rec.Err != nil {
			fmt.Fprintf(&b, "%s: error %s\n", rec.Name, rec.ErrCode)
			continue
		}
		res := rec.Result
		fmt.Fprintf(&b, "%s: created=%d updated=%d deleted=%d completion_writebacks=%d metadata_writebacks=%d appended=%d skipped=%d errors=%d conflicts=%d\n",
			rec.Name, res.Created, res.Updated, res.Deleted, res.CompletionWritebacks,
			res.MetadataWritebacks, res.Appended, res.Skipped, res.Errors, len(res.Conflicts))
		for _, it := range res.Items {
			fmt.Fprintf(&b, "  %s %s", it.Kind, it.Title)
			if it.Path != "" {
				fmt.Fprintf(&b, " (%s)", it.Path)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n== destination ==\n")
	for _, t := range result.Destination {
		b.WriteString(destinationLine(t))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "mappings: %d\n", result.Mappings)

	b.WriteString("\n== notes ==\n")
	for _, rel := range sortedKeys(result.Notes) {
		fmt.Fprintf(&b, "--- %s\n%s", rel, result.Notes[rel])
		if !strings.HasSuffix(result.Notes[rel], "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func destinationLine(t task.Task) string {
	box := "[ ]"
	if t.Completed {
		box = "[x]"
	}
	parts := []string{box, t.Title}
	add := func(key, val string) {
		if val != "" {
			parts = append(parts, key+"="+val)
		}
	}
	add("list", t.List)
	if t.Priority != task.PriorityNone {
		add("priority", t.Priority.String())
	}
	add("start", task.FormatDate(t.Start))
	add("scheduled", task.FormatDate(t.Scheduled))
	add("due", task.FormatDate(t.Due))
	add("done", task.FormatDate(t.CompletedOn))
	add("every", strings.TrimPrefix(t.Recurrence, "every "))
	return strings.Join(parts, " ")
}
