package indexsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/activerules/internal/ir"
	"github.com/roach88/activerules/internal/projection"
	"github.com/roach88/activerules/internal/store"
)

// ReindexStats summarizes a Reindex run.
type ReindexStats struct {
	Indexed int
	Failed  int
	Removed int
}

// Reindex rebuilds the index from every committed activation, removes
// documents with no activation behind them, and refreshes. Rows that fail
// to project are reported, joined, after the rest are indexed.
func (s *Synchronizer) Reindex(ctx context.Context) (ReindexStats, error) {
	start := time.Now()
	var stats ReindexStats

	rows, err := s.source.AllActiveRules(ctx)
	if err != nil {
		return stats, fmt.Errorf("reindex: %w", err)
	}
	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	params, err := s.source.FindActiveRuleParamsByIDs(ctx, ids)
	if err != nil {
		return stats, fmt.Errorf("reindex: %w", err)
	}

	docs := make([]ir.ActiveRule, len(rows))
	projErrs := make([]error, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, row := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			docs[i], projErrs[i] = projection.Project(row, params[row.ID])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, fmt.Errorf("reindex: %w", err)
	}

	valid := make([]ir.ActiveRule, 0, len(docs))
	var errs []error
	for i, doc := range docs {
		if projErrs[i] != nil {
			errs = append(errs, projErrs[i])
			continue
		}
		valid = append(valid, doc)
	}

	stats.Indexed = len(valid)
	if err := s.sink.UpsertBatch(ctx, valid); err != nil {
		stats.Indexed -= joinedLen(err)
		errs = append(errs, err)
	}
	stats.Failed = len(rows) - stats.Indexed

	removed, err := s.reconcile(ctx, rows)
	if err != nil {
		return stats, fmt.Errorf("reindex: %w", err)
	}
	stats.Removed = removed

	if err := s.sink.Refresh(ctx); err != nil {
		return stats, fmt.Errorf("reindex: %w", err)
	}

	s.logger.Info("reindex complete",
		slog.Int("indexed", stats.Indexed),
		slog.Int("failed", stats.Failed),
		slog.Int("removed", stats.Removed),
		slog.Duration("duration", time.Since(start)))

	if len(errs) > 0 {
		return stats, fmt.Errorf("reindex: %w", errors.Join(errs...))
	}
	return stats, nil
}

// Reconcile deletes index documents whose activation no longer exists in
// the store and returns how many were removed. Deletes are pending until
// the next refresh.
func (s *Synchronizer) Reconcile(ctx context.Context) (int, error) {
	rows, err := s.source.AllActiveRules(ctx)
	if err != nil {
		return 0, fmt.Errorf("reconcile: %w", err)
	}
	removed, err := s.reconcile(ctx, rows)
	if err != nil {
		return removed, fmt.Errorf("reconcile: %w", err)
	}
	return removed, nil
}

func (s *Synchronizer) reconcile(ctx context.Context, rows []store.ActiveRuleRow) (int, error) {
	live := make(map[ir.ActiveRuleKey]bool, len(rows))
	for _, row := range rows {
		live[row.Key()] = true
	}

	visible, err := s.sink.Keys(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range visible {
		if live[key] {
			continue
		}
		if err := s.sink.Delete(ctx, key); err != nil {
			return removed, err
		}
		s.logger.Debug("removing orphaned document", slog.String("key", key.String()))
		removed++
	}
	return removed, nil
}

// joinedLen counts the errors inside an errors.Join result.
func joinedLen(err error) int {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return len(j.Unwrap())
	}
	return 1
}
