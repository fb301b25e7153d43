package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/notesync/internal/recurrence"
	"github.com/roach88/notesync/internal/task"
)

// RecurOptions holds flags for the recur command.
type RecurOptions struct {
	*RootOptions
	Ref  string
	Done string

	now func() time.Time
}

// NewRecurCommand creates the recur command.
func NewRecurCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecurOptions{RootOptions: rootOpts, now: time.Now}

	cmd := &cobra.Command{
		Use:   "recur <rule>",
		Short: "Compute the next occurrence of a recurrence rule",
		Long: `Print the date a recurring task rolls over to.

Examples:
  notesync recur "every 2 weeks" --ref 2026-02-09
  notesync recur "every month on the 15th when done" --done 2026-02-20`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecur(cmd, opts, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVar(&opts.Ref, "ref", "", "reference date (YYYY-MM-DD), usually the due date")
	cmd.Flags().StringVar(&opts.Done, "done", "", "completion date (YYYY-MM-DD, default today)")

	return cmd
}

type recurReport struct {
	Rule     string     `json:"rule"`
	WhenDone bool       `json:"when_done"`
	Next     time.Time  `json:"next"`
	Start    *time.Time `json:"start,omitempty"`
}

func runRecur(cmd *cobra.Command, opts *RecurOptions, text string) error {
	f := newFormatter(cmd, opts.RootOptions)

	rule, ok := recurrence.Parse(text)
	if !ok {
		return fail(f, NewExitError(ExitCommandError, fmt.Sprintf("unrecognized rule %q", text)))
	}

	var ref time.Time
	if opts.Ref != "" {
		d, err := task.ParseDate(opts.Ref)
		if err != nil {
			return fail(f, WrapExitError(ExitCommandError, "invalid --ref", err))
		}
		ref = d
	}
	done := task.Truncate(opts.now())
	if opts.Done != "" {
		d, err := task.ParseDate(opts.Done)
		if err != nil {
			return fail(f, WrapExitError(ExitCommandError, "invalid --done", err))
		}
		done = d
	}

	res := recurrence.Next(rule, ref, done)
	return f.Success(recurReport{
		Rule:     rule.Text,
		WhenDone: rule.WhenDone,
		Next:     res.Next,
		Start:    res.Start,
	})
}

// WriteText writes the next date, and the anchored start when there is one.
func (r recurReport) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "next:  %s\n", r.Next.Format(task.DateLayout)); err != nil {
		return err
	}
	if r.Start != nil {
		_, err := fmt.Fprintf(w, "start: %s\n", task.FormatDate(r.Start))
		return err
	}
	return nil
}
