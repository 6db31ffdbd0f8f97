package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/activerules/internal/config"
	"github.com/roach88/activerules/internal/index"
	"github.com/roach88/activerules/internal/indexsync"
	"github.com/roach88/activerules/internal/store"
)

// Engine is the composition root: one store, one index and the
// synchronizer attached between them.
type Engine struct {
	store  *store.Store
	index  *index.Index
	sync   *indexsync.Synchronizer
	logger *slog.Logger
	keys   store.KeyGenerator
	reg    prometheus.Registerer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithKeyGenerator replaces the UUIDv7 profile key generator.
//
// Use a sequential generator in tests for reproducible golden output.
func WithKeyGenerator(gen store.KeyGenerator) Option {
	return func(e *Engine) {
		e.keys = gen
	}
}

// WithRegisterer registers the index metrics with reg. Without it the
// metrics are collected but not exported.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.reg = reg
	}
}

// New opens the store and index named by cfg and attaches the
// synchronizer. cfg must already be validated.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}
	if e.keys != nil {
		st.SetKeyGenerator(e.keys)
	}

	x, err := index.Open(index.Options{
		Dir:             cfg.IndexDir,
		InMemory:        cfg.InMemoryIndex,
		SyncWrites:      cfg.SyncWrites,
		RefreshInterval: cfg.RefreshInterval,
		GCInterval:      cfg.GCInterval,
		Logger:          e.logger,
		Registerer:      e.reg,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open engine: %w", err)
	}

	e.store = st
	e.index = x
	e.sync = indexsync.New(st, x,
		indexsync.WithLogger(e.logger),
		indexsync.WithConcurrency(cfg.Concurrency),
	)
	e.sync.Attach(st)

	e.logger.Debug("engine opened",
		"database", cfg.Database,
		"index_dir", cfg.IndexDir,
		"in_memory_index", cfg.InMemoryIndex,
		"refresh_interval", cfg.RefreshInterval,
	)
	return e, nil
}

// Store returns the relational store. Commits made through it are
// propagated to the index.
func (e *Engine) Store() *store.Store { return e.store }

// Index returns the document index for queries.
func (e *Engine) Index() *index.Index { return e.index }

// Sync returns the synchronizer, for reindex and reconcile.
func (e *Engine) Sync() *indexsync.Synchronizer { return e.sync }

// Refresh makes every write accepted so far visible to queries.
func (e *Engine) Refresh(ctx context.Context) error {
	return e.index.Refresh(ctx)
}

// Reset empties both the store and the index. Commit hooks stay attached,
// so an Engine can be reused across test cases.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.store.Reset(ctx); err != nil {
		return err
	}
	if err := e.index.Reset(ctx); err != nil {
		return err
	}
	if gen, ok := e.keys.(interface{ Reset() }); ok {
		gen.Reset()
	}
	return nil
}

// Close flushes pending index writes and closes both stores.
func (e *Engine) Close() error {
	var errs []error
	if err := e.index.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close index: %w", err))
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}
