package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ReindexOptions holds flags for the reindex command.
type ReindexOptions struct {
	*RootOptions
	ReconcileOnly bool
}

// ReindexResult is the output of the reindex command.
type ReindexResult struct {
	Indexed int `json:"indexed"`
	Failed  int `json:"failed"`
	Removed int `json:"removed"`
}

func (r ReindexResult) String() string {
	return fmt.Sprintf("Indexed %d, failed %d, removed %d", r.Indexed, r.Failed, r.Removed)
}

// NewReindexCommand creates the reindex command.
func NewReindexCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReindexOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the index from the store",
		Long: `Rebuild the index from every committed activation and remove documents
that no longer have an activation behind them.

With --reconcile-only, existing documents are kept and only orphans are
removed.

Exit codes:
  0 - Every activation was indexed
  1 - One or more activations could not be projected or written
  2 - Command error (bad config, etc.)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReindex(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.ReconcileOnly, "reconcile-only", false, "only remove orphaned documents")

	return cmd
}

func runReindex(opts *ReindexOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	e, err := opts.openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	if opts.ReconcileOnly {
		removed, err := e.Sync().Reconcile(ctx)
		if err != nil {
			return formatter.Fail(ExitFailure, "reconcile failed", err)
		}
		if err := e.Refresh(ctx); err != nil {
			return formatter.Fail(ExitFailure, "refresh failed", err)
		}
		return formatter.Success(ReindexResult{Removed: removed})
	}

	stats, err := e.Sync().Reindex(ctx)
	result := ReindexResult{Indexed: stats.Indexed, Failed: stats.Failed, Removed: stats.Removed}
	if err != nil {
		formatter.VerboseLog("%s", result)
		return formatter.Fail(ExitFailure, "reindex incomplete", err)
	}
	return formatter.Success(result)
}
