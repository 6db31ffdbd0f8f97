// Package config loads arindex configuration.
//
// A config file is YAML (.yaml, .yml) or CUE (.cue). Either way the values
// are unified with an embedded CUE schema, which rejects unknown fields,
// checks types and ranges, and supplies defaults.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaCUE string

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Format is a config file syntax.
type Format int

const (
	FormatYAML Format = iota
	FormatCUE
)

// Config is the resolved configuration.
type Config struct {
	Database        string
	IndexDir        string
	InMemoryIndex   bool
	RefreshInterval time.Duration
	GCInterval      time.Duration
	SyncWrites      bool
	LogLevel        string
	Concurrency     int
}

// resolved mirrors the schema; cue.Value.Decode fills it using json tags.
type resolved struct {
	Database        string `json:"database"`
	IndexDir        string `json:"index_dir"`
	InMemoryIndex   bool   `json:"in_memory_index"`
	RefreshInterval string `json:"refresh_interval"`
	GCInterval      string `json:"gc_interval"`
	SyncWrites      bool   `json:"sync_writes"`
	LogLevel        string `json:"log_level"`
	Concurrency     int    `json:"concurrency"`
}

// Default returns the schema defaults.
func Default() Config {
	cfg, err := resolve(func(*cue.Context) (cue.Value, error) {
		return cue.Value{}, nil
	})
	if err != nil {
		panic(fmt.Sprintf("config schema defaults: %v", err))
	}
	return cfg
}

// Load reads a config file, choosing the format by extension.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	var format Format
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	case ".cue":
		format = FormatCUE
	default:
		return Config{}, fmt.Errorf("load config %s: unsupported extension", path)
	}

	cfg, err := Parse(data, format)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse parses config data in the given format. Cross-field constraints
// are left to Validate, since flags may still fill in missing values.
func Parse(data []byte, format Format) (Config, error) {
	switch format {
	case FormatYAML:
		fields, err := decodeYAML(data)
		if err != nil {
			return Config{}, err
		}
		return resolve(func(ctx *cue.Context) (cue.Value, error) {
			return ctx.Encode(fields), nil
		})
	case FormatCUE:
		return resolve(func(ctx *cue.Context) (cue.Value, error) {
			v := ctx.CompileBytes(data, cue.Filename("config.cue"))
			if err := v.Err(); err != nil {
				return cue.Value{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
			}
			return v, nil
		})
	default:
		return Config{}, fmt.Errorf("parse config: unknown format %d", format)
	}
}

// resolve unifies the value built by data with the schema and decodes
// the result. A zero cue.Value means no data: schema defaults only.
func resolve(data func(*cue.Context) (cue.Value, error)) (Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v, err := data(ctx)
	if err != nil {
		return Config{}, err
	}
	unified := def
	if v.Exists() {
		unified = def.Unify(v)
	}
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	var r resolved
	if err := unified.Decode(&r); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return r.config()
}

func (r resolved) config() (Config, error) {
	refresh, err := time.ParseDuration(r.RefreshInterval)
	if err != nil {
		return Config{}, fmt.Errorf("%w: refresh_interval: %w", ErrInvalidConfig, err)
	}
	gc, err := time.ParseDuration(r.GCInterval)
	if err != nil {
		return Config{}, fmt.Errorf("%w: gc_interval: %w", ErrInvalidConfig, err)
	}
	return Config{
		Database:        r.Database,
		IndexDir:        r.IndexDir,
		InMemoryIndex:   r.InMemoryIndex,
		RefreshInterval: refresh,
		GCInterval:      gc,
		SyncWrites:      r.SyncWrites,
		LogLevel:        r.LogLevel,
		Concurrency:     r.Concurrency,
	}, nil
}

// Validate checks constraints that span fields. Call it after flag
// overrides are applied.
func (c Config) Validate() error {
	var errs []error
	if c.Database == "" {
		errs = append(errs, fmt.Errorf("%w: database is required", ErrInvalidConfig))
	}
	if !c.InMemoryIndex && c.IndexDir == "" {
		errs = append(errs, fmt.Errorf("%w: index_dir is required unless in_memory_index is set", ErrInvalidConfig))
	}
	if c.RefreshInterval < 0 || c.GCInterval < 0 {
		errs = append(errs, fmt.Errorf("%w: intervals must not be negative", ErrInvalidConfig))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("%w: concurrency must be at least 1", ErrInvalidConfig))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SlogLevel returns the configured log level.
func (c Config) SlogLevel() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: log_level %q", ErrInvalidConfig, s)
	}
}
