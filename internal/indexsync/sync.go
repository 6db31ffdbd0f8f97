// Package indexsync keeps the index in step with the relational store.
//
// A Synchronizer attached to a store receives every committed change set,
// reads the committed rows back, projects them and writes the documents
// to the index. Every key is read and written under a per-key lock, and a
// key whose activation is gone becomes an index delete, so deletion
// propagates synchronously after commit. Reconcile
// removes index documents left behind by anything that bypassed the hook,
// such as direct SQL or a crash between commit and hook.
//
// The hook only makes writes pending. Callers needing read-after-write
// visibility still call Refresh on the index, or Synchronizer.Refresh.
package indexsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/activerules/internal/ir"
	"github.com/roach88/activerules/internal/projection"
	"github.com/roach88/activerules/internal/store"
)

// DefaultConcurrency bounds the number of keys synchronized at once.
const DefaultConcurrency = 8

// Source reads committed activation rows. *store.Store implements it.
type Source interface {
	FindActiveRuleByKey(ctx context.Context, key ir.ActiveRuleKey) (store.ActiveRuleRow, bool, error)
	FindActiveRuleParams(ctx context.Context, activeRuleID int64) ([]store.ActiveRuleParamRow, error)
	AllActiveRules(ctx context.Context) ([]store.ActiveRuleRow, error)
	FindActiveRuleParamsByIDs(ctx context.Context, ids []int64) (map[int64][]store.ActiveRuleParamRow, error)
}

// Sink accepts index writes. *index.Index implements it.
type Sink interface {
	Upsert(ctx context.Context, doc ir.ActiveRule) error
	UpsertBatch(ctx context.Context, docs []ir.ActiveRule) error
	Delete(ctx context.Context, key ir.ActiveRuleKey) error
	Refresh(ctx context.Context) error
	Keys(ctx context.Context) ([]ir.ActiveRuleKey, error)
}

// Synchronizer projects committed activations into the index.
type Synchronizer struct {
	source      Source
	sink        Sink
	logger      *slog.Logger
	concurrency int
	keys        *keyLocks
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger. The default is slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithConcurrency bounds how many keys are synchronized at once.
// Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(s *Synchronizer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New creates a Synchronizer reading from source and writing to sink.
func New(source Source, sink Sink, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		source:      source,
		sink:        sink,
		logger:      slog.Default(),
		concurrency: DefaultConcurrency,
		keys:        newKeyLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach registers the synchronizer as a commit hook of st.
func (s *Synchronizer) Attach(st *store.Store) {
	st.OnCommit(s.HandleCommit)
}

// HandleCommit synchronizes the keys of one committed change set. Every
// key is attempted; failures are joined so the committer learns which
// activations are not searchable.
func (s *Synchronizer) HandleCommit(ctx context.Context, changes store.ChangeSet) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	// Deleted keys are re-read too: a later commit may already have
	// recreated the activation, and its state must win.
	for _, key := range slices.Concat(changes.Upserted, changes.Deleted) {
		g.Go(func() error {
			if err := s.SyncKey(gctx, key); err != nil {
				record(err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		s.logger.Error("index sync failed",
			slog.Int("failed", len(errs)),
			slog.Int("changes", changes.Len()))
		return errors.Join(errs...)
	}

	s.logger.Debug("index sync",
		slog.Int("upserted", len(changes.Upserted)),
		slog.Int("deleted", len(changes.Deleted)))
	return nil
}

// SyncKey reads the committed state of one activation and writes it to
// the index. An activation no longer in the store is deleted.
//
// Calls for the same key are serialized from the read to the index write,
// so the last call to finish wrote the state committed before it started.
func (s *Synchronizer) SyncKey(ctx context.Context, key ir.ActiveRuleKey) error {
	unlock := s.keys.lock(key)
	defer unlock()

	row, found, err := s.source.FindActiveRuleByKey(ctx, key)
	if err != nil {
		return fmt.Errorf("sync %s: %w", key, err)
	}
	if !found {
		if err := s.sink.Delete(ctx, key); err != nil {
			return fmt.Errorf("sync %s: %w", key, err)
		}
		return nil
	}

	params, err := s.source.FindActiveRuleParams(ctx, row.ID)
	if err != nil {
		return fmt.Errorf("sync %s: %w", key, err)
	}
	doc, err := projection.Project(row, params)
	if err != nil {
		return fmt.Errorf("sync %s: %w", key, err)
	}
	if err := s.sink.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("sync %s: %w", key, err)
	}
	return nil
}

// Refresh makes every synchronized write visible.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	return s.sink.Refresh(ctx)
}
