package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/notesync/internal/audit"
	"github.com/roach88/notesync/internal/backup"
	"github.com/roach88/notesync/internal/config"
	"github.com/roach88/notesync/internal/edit"
	"github.com/roach88/notesync/internal/engine"
	"github.com/roach88/notesync/internal/markdown"
	"github.com/roach88/notesync/internal/mirror"
	"github.com/roach88/notesync/internal/store"
)

// suppressTTL is how long a path written by a sync stays muted for watchers.
const suppressTTL = 5 * time.Second

// app is the set of open resources one command works against.
type app struct {
	cfg    *config.Config
	states *store.Store
	mirror *mirror.Store
	source *markdown.Source
	engine *engine.Engine
}

// loadConfig reads the config named by --config, or the default location.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	path := opts.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// openApp loads config and opens both databases. Callers must call close.
func openApp(opts *RootOptions, engineOpts ...engine.Option) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	for _, p := range []string{cfg.StateDB, cfg.MirrorDB} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to create data directory", err)
		}
	}

	states, err := store.Open(cfg.StateDB)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open state database", err)
	}
	dst, err := mirror.Open(cfg.MirrorDB)
	if err != nil {
		_ = states.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open mirror database", err)
	}

	x := edit.New(
		edit.WithBackups(backup.New(cfg.Backup.Dir, cfg.Backup.MaxCount, cfg.Backup.MaxAge())),
		edit.WithAudit(audit.New(cfg.Audit.Path, cfg.Audit.MaxBytes, cfg.Audit.MaxFiles)),
		edit.WithSuppressor(edit.NewSuppressionList(suppressTTL)),
	)
	src := markdown.New(cfg.Vault, x,
		markdown.WithInbox(cfg.Inbox),
		markdown.WithExclude(cfg.Exclude...))

	return &app{
		cfg:    cfg,
		states: states,
		mirror: dst,
		source: src,
		engine: engine.New(src, dst, states, engineOpts...),
	}, nil
}

func (a *app) close() {
	if err := a.mirror.Close(); err != nil {
		slog.Error("error closing mirror database", "error", err)
	}
	if err := a.states.Close(); err != nil {
		slog.Error("error closing state database", "error", err)
	}
}

// exitErrorFor maps an engine failure to the CLI exit code contract.
func exitErrorFor(err error) *ExitError {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	switch {
	case engine.IsSafetyAbort(err):
		return WrapExitError(ExitSafetyAbort, "sync aborted", err)
	case engine.IsConfigError(err):
		return WrapExitError(ExitCommandError, "sync not started", err)
	case engine.IsAlreadyRunning(err):
		return WrapExitError(ExitFailure, "sync not started", err)
	default:
		return WrapExitError(ExitFailure, "sync failed", err)
	}
}

// errorCode returns the code reported in JSON error responses.
func errorCode(err error) string {
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		return string(engErr.Code)
	}
	return "E_CLI"
}

// fail reports err through the formatter and returns the exit error.
func fail(f *OutputFormatter, err error) error {
	exitErr := exitErrorFor(err)
	var details any
	var engErr *engine.Error
	if errors.As(err, &engErr) && len(engErr.Details) > 0 {
		details = engErr.Details
	}
	if outErr := f.Error(errorCode(err), exitErr.Error(), details); outErr != nil {
		return fmt.Errorf("write output: %w", outErr)
	}
	return exitErr
}
