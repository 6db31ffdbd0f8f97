package index

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/activerules/internal/ir"
)

// ctxCheckEvery is how many entries refresh writes between context checks.
const ctxCheckEvery = 256

// Refresh applies every write accepted before the call, so that it is
// visible to subsequent reads. Writes accepted while Refresh runs may or
// may not be covered.
//
// When ctx ends first, Refresh returns an error wrapping
// ErrVisibilityTimeout and the writes stay pending; nothing is lost.
func (x *Index) Refresh(ctx context.Context) error {
	if x.closed.Load() {
		return ErrIndexClosed
	}
	return x.refresh(ctx)
}

func (x *Index) refresh(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		x.metrics.refreshDuration.WithLabelValues(refreshResult(err)).Observe(time.Since(start).Seconds())
	}()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrVisibilityTimeout, err)
	}
	if err := x.refreshing.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: waiting for refresh: %w", ErrVisibilityTimeout, err)
	}
	defer x.refreshing.Release(1)

	x.mu.Lock()
	batch := x.pending
	x.pending = make(map[ir.ActiveRuleKey]pendingOp)
	x.applying = batch
	x.metrics.pending.Set(0)
	x.mu.Unlock()

	if len(batch) == 0 {
		x.finishApply(nil)
		return nil
	}

	if err := x.apply(ctx, batch); err != nil {
		x.finishApply(batch)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %d writes still pending: %w", ErrVisibilityTimeout, len(batch), ctxErr)
		}
		return fmt.Errorf("refresh: %w", err)
	}
	x.finishApply(nil)

	x.logger.Debug("index refreshed",
		slog.Int("applied", len(batch)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// finishApply clears the in-flight batch and puts back the entries of a
// failed one. An entry rewritten since the snapshot is newer and wins.
func (x *Index) finishApply(failed map[ir.ActiveRuleKey]pendingOp) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.applying = nil
	for key, op := range failed {
		if _, newer := x.pending[key]; !newer {
			x.pending[key] = op
		}
	}
	x.metrics.pending.Set(float64(len(x.pending)))
}

// apply writes a batch to Badger. Documents whose stored hash equals the
// pending hash are skipped.
func (x *Index) apply(ctx context.Context, batch map[ir.ActiveRuleKey]pendingOp) error {
	ops := slices.SortedFunc(maps.Values(batch), func(a, b pendingOp) int {
		return cmp.Compare(a.seq, b.seq)
	})

	unchanged, err := x.unchanged(ops)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	wb := x.db.NewWriteBatch()
	defer wb.Cancel()

	var upserted, deleted, skipped int
	for i, op := range ops {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		key := op.doc.Key
		switch {
		case op.delete:
			for _, k := range [][]byte{docKey(key), ruleKey(key), profileKey(key)} {
				if err := wb.Delete(k); err != nil {
					return fmt.Errorf("delete %s: %w", key, err)
				}
			}
			deleted++
		case unchanged[key]:
			skipped++
		default:
			data, err := encodeDoc(op.doc, op.hash)
			if err != nil {
				return err
			}
			if err := wb.Set(docKey(key), data); err != nil {
				return fmt.Errorf("write %s: %w", key, err)
			}
			for _, k := range [][]byte{ruleKey(key), profileKey(key)} {
				if err := wb.Set(k, []byte{}); err != nil {
					return fmt.Errorf("write %s: %w", key, err)
				}
			}
			upserted++
		}
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	x.metrics.applied.WithLabelValues("upserted").Add(float64(upserted))
	x.metrics.applied.WithLabelValues("deleted").Add(float64(deleted))
	x.metrics.applied.WithLabelValues("unchanged").Add(float64(skipped))
	return nil
}

// unchanged reports which pending upserts match the stored document hash.
func (x *Index) unchanged(ops []pendingOp) (map[ir.ActiveRuleKey]bool, error) {
	out := make(map[ir.ActiveRuleKey]bool)
	err := x.db.View(func(txn *badger.Txn) error {
		for _, op := range ops {
			if op.delete {
				continue
			}
			item, err := txn.Get(docKey(op.doc.Key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("read %s: %w", op.doc.Key, err)
			}
			err = item.Value(func(val []byte) error {
				sd, err := decodeStored(val)
				if err != nil {
					return err
				}
				if sd.Hash == op.hash {
					out[op.doc.Key] = true
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("read %s: %w", op.doc.Key, err)
			}
		}
		return nil
	})
	return out, err
}

func refreshResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrVisibilityTimeout):
		return "timeout"
	default:
		return "error"
	}
}
