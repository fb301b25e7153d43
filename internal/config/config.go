// Package config loads notesync.yaml.
//
// The file is decoded over Default(), so every key is optional except
// vault. Paths may start with "~". The result is validated against an
// embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/notesync/internal/engine"
)

//go:embed schema.cue
var schemaCUE string

// Config is the full configuration.
type Config struct {
	// Vault is the root folder of the note collection.
	Vault string `yaml:"vault" json:"vault"`
	// Inbox is the note receiving tasks appended from the destination,
	// relative to Vault.
	Inbox    string   `yaml:"inbox" json:"inbox"`
	StateDB  string   `yaml:"state_db" json:"state_db"`
	MirrorDB string   `yaml:"mirror_db" json:"mirror_db"`
	Exclude  []string `yaml:"exclude" json:"exclude"`

	Sync   Sync   `yaml:"sync" json:"sync"`
	Backup Backup `yaml:"backup" json:"backup"`
	Audit  Audit  `yaml:"audit" json:"audit"`
}

// Sync holds the reconciliation switches.
type Sync struct {
	DryRun        bool      `yaml:"dry_run" json:"dry_run"`
	SyncCompleted bool      `yaml:"sync_completed" json:"sync_completed"`
	AppendNew     bool      `yaml:"append_new" json:"append_new"`
	Writeback     Writeback `yaml:"writeback" json:"writeback"`
}

// Writeback toggles each destination-to-source channel.
type Writeback struct {
	Completion bool `yaml:"completion" json:"completion"`
	Due        bool `yaml:"due" json:"due"`
	Start      bool `yaml:"start" json:"start"`
	Priority   bool `yaml:"priority" json:"priority"`
}

// Backup configures pre-edit file backups.
type Backup struct {
	Dir        string `yaml:"dir" json:"dir"`
	MaxCount   int    `yaml:"max_count" json:"max_count"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
}

// MaxAge returns the retention period.
func (b Backup) MaxAge() time.Duration {
	return time.Duration(b.MaxAgeDays) * 24 * time.Hour
}

// Audit configures the mutation log.
type Audit struct {
	Path     string `yaml:"path" json:"path"`
	MaxBytes int64  `yaml:"max_bytes" json:"max_bytes"`
	MaxFiles int    `yaml:"max_files" json:"max_files"`
}

// Default returns the configuration used for keys the file leaves out.
func Default() Config {
	return Config{
		Inbox:    "Inbox.md",
		StateDB:  "~/.notesync/state.db",
		MirrorDB: "~/.notesync/mirror.db",
		Exclude:  []string{},
		Sync: Sync{
			Writeback: Writeback{Completion: true},
		},
		Backup: Backup{
			Dir:        "~/.notesync/backups",
			MaxCount:   20,
			MaxAgeDays: 30,
		},
		Audit: Audit{
			Path:     "~/.notesync/audit.log",
			MaxBytes: 10 << 20,
			MaxFiles: 5,
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/notesync/config.yaml, falling back
// to ~/.config.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "notesync", "config.yaml")
	}
	return filepath.Join("~", ".config", "notesync", "config.yaml")
}

// Load reads, expands and validates the file at path.
// Unknown keys are rejected to catch typos.
func Load(path string) (*Config, error) {
	path, err := ExpandHome(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults, expands paths and validates.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if cfg.Exclude == nil {
		cfg.Exclude = []string{}
	}

	for _, p := range []*string{&cfg.Vault, &cfg.StateDB, &cfg.MirrorDB, &cfg.Backup.Dir, &cfg.Audit.Path} {
		expanded, err := ExpandHome(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks c against the CUE schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %s", strings.TrimSpace(cueerrors.Details(err, nil)))
	}
	return nil
}

// EngineConfig returns the reconciliation settings.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		DryRun:        c.Sync.DryRun,
		SyncCompleted: c.Sync.SyncCompleted,
		AppendNew:     c.Sync.AppendNew,
		Inbox:         c.Inbox,
		Writeback: engine.Writeback{
			Completion: c.Sync.Writeback.Completion,
			Due:        c.Sync.Writeback.Due,
			Start:      c.Sync.Writeback.Start,
			Priority:   c.Sync.Writeback.Priority,
		},
	}
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
