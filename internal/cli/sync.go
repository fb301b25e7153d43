package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/notesync/internal/engine"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	DryRun bool
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the vault with the task store",
		Long: `Scan the vault, then create, update and delete destination tasks so they
match the notes. Completions and enabled date or priority changes made in
the destination are written back into the notes.

Exit codes:
  0  sync finished without task errors
  1  sync failed, or finished with task errors
  2  config or vault unusable
  3  safety abort: the scan found far fewer tasks than are mapped`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report planned changes without applying them")

	return cmd
}

func runSync(cmd *cobra.Command, opts *SyncOptions) error {
	f := newFormatter(cmd, opts.RootOptions)

	a, err := openApp(opts.RootOptions, opts.engineOpts...)
	if err != nil {
		return fail(f, err)
	}
	defer a.close()

	cfg := a.cfg.EngineConfig()
	if opts.DryRun {
		cfg.DryRun = true
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := a.engine.Run(ctx, cfg)
	if err != nil {
		return fail(f, err)
	}

	for _, it := range res.Items {
		if it.Kind == engine.ItemSkipped {
			f.VerboseLog("skipped %s (%s)", it.Title, it.Path)
		}
	}
	if err := f.Success(syncReport{res}); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if res.Errors > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d task(s) failed", res.Errors))
	}
	return nil
}

// syncReport renders a Result. It marshals to JSON as the Result itself.
type syncReport struct {
	*engine.Result
}

// WriteText writes the human-readable summary.
func (r syncReport) WriteText(w io.Writer) error {
	res := r.Result
	header := "Sync " + res.RunID
	if res.DryRun {
		header += " (dry run)"
	}
	fmt.Fprintf(w, "%s finished in %s\n\n", header, res.Duration.Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	counts := []struct {
		label string
		n     int
	}{
		{"created", res.Created},
		{"updated", res.Updated},
		{"deleted", res.Deleted},
		{"completion writebacks", res.CompletionWritebacks},
		{"metadata writebacks", res.MetadataWritebacks},
		{"appended", res.Appended},
		{"skipped", res.Skipped},
		{"errors", res.Errors},
	}
	for _, c := range counts {
		fmt.Fprintf(tw, "  %s:\t%d\n", c.label, c.n)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	var changed []engine.ItemOutcome
	for _, it := range res.Items {
		if it.Kind != engine.ItemSkipped {
			changed = append(changed, it)
		}
	}
	if len(changed) > 0 {
		fmt.Fprintln(w, "\nItems:")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, it := range changed {
			line := fmt.Sprintf("  %s\t%s", it.Kind, it.Title)
			if it.Path != "" {
				line += " (" + it.Path + ")"
			}
			if it.Error != "" {
				line += ": " + it.Error
			}
			fmt.Fprintln(tw, line)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(res.Conflicts) > 0 {
		fmt.Fprintln(w, "\nConflicts:")
		for _, c := range res.Conflicts {
			fmt.Fprintf(w, "  %s (%s): %s\n", c.Title, c.Path, c.Resolution)
		}
	}
	return nil
}
