package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"github.com/roach88/activerules/internal/ir"
)

// Options configures an Index.
type Options struct {
	// Dir is the Badger directory. Required unless InMemory is set.
	Dir string

	// InMemory keeps the index in memory only. Useful for testing.
	InMemory bool

	// SyncWrites makes every refresh durable before it returns.
	SyncWrites bool

	// RefreshInterval enables background refresh. Zero disables it, so
	// writes become visible only through explicit Refresh calls.
	RefreshInterval time.Duration

	// GCInterval is how often to run Badger value log GC on a disk index.
	// Zero disables it.
	GCInterval time.Duration

	// Logger receives index and Badger logs. Nil uses slog.Default and
	// silences Badger. Badger's informational messages are logged at
	// debug level.
	Logger *slog.Logger

	// Registerer receives the index collectors. Nil leaves them
	// unregistered.
	Registerer prometheus.Registerer
}

// pendingOp is a write waiting for refresh. seq orders writes to the same
// key; a higher seq always replaces a lower one.
type pendingOp struct {
	seq    uint64
	doc    ir.ActiveRule
	hash   string
	delete bool
}

// Index is a BadgerDB backed document index with an explicit refresh
// barrier. Safe for concurrent use.
type Index struct {
	db      *badger.DB
	logger  *slog.Logger
	metrics *metrics

	mu      sync.Mutex
	seq     uint64
	pending map[ir.ActiveRuleKey]pendingOp
	// applying is the batch a refresh is writing, nil otherwise.
	applying map[ir.ActiveRuleKey]pendingOp

	// refreshing admits one refresh at a time.
	refreshing *semaphore.Weighted

	closed atomic.Bool
	bg     *background
}

// Open opens or creates an index.
func Open(opts Options) (*Index, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("open index: dir is required for a persistent index")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Dir, 0750); err != nil {
			return nil, fmt.Errorf("open index: create %s: %w", opts.Dir, err)
		}
		bopts = badger.DefaultOptions(opts.Dir)
	}
	bopts = bopts.WithSyncWrites(opts.SyncWrites).WithNumVersionsToKeep(1)
	if opts.Logger != nil {
		bopts = bopts.WithLogger(&badgerLogger{logger: opts.Logger.With("component", "badger")})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	x := &Index{
		db:         db,
		logger:     logger,
		metrics:    newMetrics(opts.Registerer),
		pending:    make(map[ir.ActiveRuleKey]pendingOp),
		refreshing: semaphore.NewWeighted(1),
	}

	gcInterval := opts.GCInterval
	if opts.InMemory {
		gcInterval = 0
	}
	if opts.RefreshInterval > 0 || gcInterval > 0 {
		x.bg = startBackground(x, opts.RefreshInterval, gcInterval)
	}
	return x, nil
}

// OpenInMemory opens an in-memory index without background refresh.
func OpenInMemory() (*Index, error) {
	return Open(Options{InMemory: true})
}

// Close stops background work, applies any pending writes and closes
// Badger. Writes accepted before Close are flushed; later writes are
// rejected with ErrIndexClosed. Safe to call more than once.
func (x *Index) Close() error {
	x.mu.Lock()
	if x.closed.Load() {
		x.mu.Unlock()
		return nil
	}
	x.closed.Store(true)
	x.mu.Unlock()

	if x.bg != nil {
		x.bg.stop()
	}

	flushErr := x.refresh(context.Background())
	if err := x.db.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	if flushErr != nil {
		return fmt.Errorf("close index: flush: %w", flushErr)
	}
	return nil
}

// Reset drops all visible documents and all pending writes. Used to
// isolate test cases.
func (x *Index) Reset(ctx context.Context) error {
	if x.closed.Load() {
		return ErrIndexClosed
	}
	if err := x.refreshing.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("reset index: %w", err)
	}
	defer x.refreshing.Release(1)

	x.mu.Lock()
	x.pending = make(map[ir.ActiveRuleKey]pendingOp)
	x.metrics.pending.Set(0)
	x.mu.Unlock()

	if err := x.db.DropAll(); err != nil {
		return fmt.Errorf("reset index: %w", err)
	}
	return nil
}

// Pending returns the number of writes not yet visible.
func (x *Index) Pending() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.pending)
}

// badgerLogger adapts slog.Logger to Badger's Logger interface. Badger
// reports routine events such as table opens and compactions at info, so
// those are demoted to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
