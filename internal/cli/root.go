package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/activerules/internal/config"
	"github.com/roach88/activerules/internal/engine"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// ConfigPath names a YAML or CUE config file. Empty uses defaults.
	ConfigPath string

	// Overrides applied on top of the config file when the flag is set.
	Database      string
	IndexDir      string
	InMemoryIndex bool

	// MetricsAddr serves Prometheus metrics on /metrics while the command
	// runs. Empty disables the endpoint.
	MetricsAddr string

	// EngineOptions are passed to every engine the commands open (for testing).
	EngineOptions []engine.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the arindex CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "arindex",
		Short: "arindex - active rule index",
		Long: `Keep a searchable index of quality profile rule activations in step
with the relational store, and query it.

Writes are committed to SQLite and propagated to a Badger index after
commit. Queries read the index and see writes once it has refreshed.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "config file (.yaml, .yml or .cue)")
	flags.StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	flags.StringVar(&opts.IndexDir, "index-dir", "", "path to index directory (overrides config)")
	flags.BoolVar(&opts.InMemoryIndex, "in-memory-index", false, "keep the index in memory (overrides config)")
	flags.StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")

	cmd.AddCommand(NewCreateProfileCommand(opts))
	cmd.AddCommand(NewActivateCommand(opts))
	cmd.AddCommand(NewDeactivateCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewFindCommand(opts))
	cmd.AddCommand(NewReindexCommand(opts))
	cmd.AddCommand(NewScenarioCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// loadConfig resolves the config file and applies flag overrides. Only
// flags set on the command line override the file.
func (o *RootOptions) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		var err error
		cfg, err = config.Load(o.ConfigPath)
		if err != nil {
			return config.Config{}, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database = o.Database
	}
	if flags.Changed("index-dir") {
		cfg.IndexDir = o.IndexDir
	}
	if flags.Changed("in-memory-index") {
		cfg.InMemoryIndex = o.InMemoryIndex
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// newLogger returns a text logger on w at the configured level.
func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
}

// openEngine loads config and opens an engine, starting the metrics
// endpoint when --metrics-addr is set. The caller must Close it.
func (o *RootOptions) openEngine(cmd *cobra.Command) (*commandEngine, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg)
	opts := []engine.Option{engine.WithLogger(logger)}

	var metrics *metricsServer
	if o.MetricsAddr != "" {
		reg := newMetricsRegistry()
		metrics, err = startMetricsServer(o.MetricsAddr, reg, logger)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to start metrics server", err)
		}
		opts = append(opts, engine.WithRegisterer(reg))
	}

	e, err := engine.New(cfg, append(opts, o.EngineOptions...)...)
	if err != nil {
		if metrics != nil {
			metrics.Close()
		}
		return nil, WrapExitError(ExitCommandError, "failed to open engine", err)
	}
	return &commandEngine{Engine: e, metrics: metrics}, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}
