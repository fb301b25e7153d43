package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/notesync/internal/engine"
)

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List vault tasks with their source ids",
		Long: `Scan the vault and list every task that would take part in a sync, after
duplicate removal. Nothing is written.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, rootOpts)
		},
	}
}

type scannedTask struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Completed bool   `json:"completed"`
	Mapped    bool   `json:"mapped"`
}

type droppedTask struct {
	Title  string `json:"title"`
	Path   string `json:"path"`
	Line   int    `json:"line"`
	KeptID string `json:"kept_id"`
	Reason string `json:"reason"`
}

type scanReport struct {
	Tasks   []scannedTask `json:"tasks"`
	Dropped []droppedTask `json:"dropped"`
}

func runScan(cmd *cobra.Command, opts *RootOptions) error {
	f := newFormatter(cmd, opts)

	a, err := openApp(opts)
	if err != nil {
		return fail(f, err)
	}
	defer a.close()

	ctx := cmd.Context()
	prior, err := a.states.Load(ctx)
	if err != nil {
		return fail(f, fmt.Errorf("load state: %w", err))
	}
	sources, dropped, err := engine.Collect(ctx, a.source, prior, a.cfg.Inbox)
	if err != nil {
		return fail(f, err)
	}
	f.VerboseLog("%d mapping(s) in %s", prior.Len(), a.cfg.StateDB)
	for _, d := range dropped {
		f.VerboseLog("dropped %s:%d %s: %s", d.Task.Path(), d.Task.Source.Line, d.Task.Title, d.Reason)
	}

	rep := scanReport{Tasks: []scannedTask{}, Dropped: []droppedTask{}}
	for id, t := range sources {
		_, mapped := prior.BySource(id)
		rep.Tasks = append(rep.Tasks, scannedTask{
			ID:        id,
			Title:     t.Title,
			Path:      t.Path(),
			Line:      t.Source.Line,
			Completed: t.Completed,
			Mapped:    mapped,
		})
	}
	sort.Slice(rep.Tasks, func(i, j int) bool {
		if rep.Tasks[i].Path != rep.Tasks[j].Path {
			return rep.Tasks[i].Path < rep.Tasks[j].Path
		}
		return rep.Tasks[i].Line < rep.Tasks[j].Line
	})
	for _, d := range dropped {
		rep.Dropped = append(rep.Dropped, droppedTask{
			Title:  d.Task.Title,
			Path:   d.Task.Path(),
			Line:   d.Task.Source.Line,
			KeptID: d.KeptID,
			Reason: d.Reason,
		})
	}

	return f.Success(rep)
}

// WriteText writes one row per task, then the dropped duplicates.
func (r scanReport) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tLOCATION\tTITLE")
	for _, t := range r.Tasks {
		state := "open"
		if t.Completed {
			state = "done"
		}
		if t.Mapped {
			state += ",mapped"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s:%d\t%s\n", shortID(t.ID), state, t.Path, t.Line, t.Title)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d task(s)\n", len(r.Tasks))

	if len(r.Dropped) > 0 {
		fmt.Fprintf(w, "\n%d duplicate(s) dropped:\n", len(r.Dropped))
		for _, d := range r.Dropped {
			fmt.Fprintf(w, "  %s:%d %s (kept %s): %s\n", d.Path, d.Line, d.Title, shortID(d.KeptID), d.Reason)
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
