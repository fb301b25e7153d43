package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/notesync/internal/mapping"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show mapping count and last sync time",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, rootOpts)
		},
	}
}

type statusReport struct {
	Vault         string     `json:"vault"`
	StateDB       string     `json:"state_db"`
	SchemaVersion int        `json:"schema_version"`
	Mappings      int        `json:"mappings"`
	LastSync      *time.Time `json:"last_sync,omitempty"`
}

func runStatus(cmd *cobra.Command, opts *RootOptions) error {
	f := newFormatter(cmd, opts)

	a, err := openApp(opts)
	if err != nil {
		return fail(f, err)
	}
	defer a.close()

	st, err := a.states.Load(cmd.Context())
	if err != nil {
		return fail(f, fmt.Errorf("load state: %w", err))
	}
	return f.Success(newStatusReport(a.cfg.Vault, a.cfg.StateDB, st))
}

func newStatusReport(vault, db string, st *mapping.State) statusReport {
	rep := statusReport{
		Vault:         vault,
		StateDB:       db,
		SchemaVersion: st.Version,
		Mappings:      st.Len(),
	}
	if !st.LastSync.IsZero() {
		last := st.LastSync
		rep.LastSync = &last
	}
	return rep
}

// WriteText writes the status block.
func (r statusReport) WriteText(w io.Writer) error {
	last := "never"
	if r.LastSync != nil {
		last = r.LastSync.Local().Format(time.RFC3339)
	}
	_, err := fmt.Fprintf(w, "vault:      %s\nstate:      %s (schema v%d)\nmappings:   %d\nlast sync:  %s\n",
		r.Vault, r.StateDB, r.SchemaVersion, r.Mappings, last)
	return err
}
