package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/activerules/internal/ir"
)

// Upsert writes or replaces the document at doc.Key. The document is
// copied; later changes by the caller do not affect the index.
//
// A nil error means the write is accepted and will be visible after the
// next refresh. Invalid documents, parent chains that loop back to the
// document, and writes to a closed index are rejected with a *WriteError.
func (x *Index) Upsert(ctx context.Context, doc ir.ActiveRule) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.upsertLocked(ctx, doc)
}

// UpsertBatch upserts several documents. Valid documents are accepted even
// when others are rejected; every rejection is returned, joined.
func (x *Index) UpsertBatch(ctx context.Context, docs []ir.ActiveRule) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	var errs []error
	for _, doc := range docs {
		if err := x.upsertLocked(ctx, doc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Delete removes the document at key once the next refresh applies it.
// Deleting an absent key is accepted and has no effect.
func (x *Index) Delete(ctx context.Context, key ir.ActiveRuleKey) error {
	err := x.delete(ctx, key)
	if err != nil {
		x.metrics.writes.WithLabelValues("delete", "rejected").Inc()
		return err
	}
	x.metrics.writes.WithLabelValues("delete", "accepted").Inc()
	return nil
}

func (x *Index) delete(ctx context.Context, key ir.ActiveRuleKey) error {
	if err := ctx.Err(); err != nil {
		return rejected(key, "context done", err)
	}
	if err := key.Validate(); err != nil {
		return rejected(key, "malformed key", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed.Load() {
		return rejected(key, "index closed", ErrIndexClosed)
	}
	x.enqueueLocked(pendingOp{doc: ir.ActiveRule{Key: key}, delete: true})
	return nil
}

func (x *Index) upsertLocked(ctx context.Context, doc ir.ActiveRule) error {
	err := x.acceptLocked(ctx, doc)
	if err != nil {
		x.metrics.writes.WithLabelValues("upsert", "rejected").Inc()
		return err
	}
	x.metrics.writes.WithLabelValues("upsert", "accepted").Inc()
	return nil
}

func (x *Index) acceptLocked(ctx context.Context, doc ir.ActiveRule) error {
	if err := ctx.Err(); err != nil {
		return rejected(doc.Key, "context done", err)
	}
	if x.closed.Load() {
		return rejected(doc.Key, "index closed", ErrIndexClosed)
	}
	if err := doc.Validate(); err != nil {
		return rejected(doc.Key, "invalid document", err)
	}

	doc = doc.Clone()
	hash, err := ir.DocumentHash(doc)
	if err != nil {
		return rejected(doc.Key, "unhashable document", err)
	}

	if doc.ParentKey != nil {
		if err := x.checkParentChainLocked(doc); err != nil {
			return rejected(doc.Key, "parent chain", err)
		}
	}

	x.enqueueLocked(pendingOp{doc: doc, hash: hash})
	return nil
}

func (x *Index) enqueueLocked(op pendingOp) {
	x.seq++
	op.seq = x.seq
	x.pending[op.doc.Key] = op
	x.metrics.pending.Set(float64(len(x.pending)))
}

// checkParentChainLocked follows parent links from doc, preferring
// accepted writes over visible documents, and fails if the chain returns
// to a key already on it. A missing ancestor ends the chain.
func (x *Index) checkParentChainLocked(doc ir.ActiveRule) error {
	seen := map[ir.ActiveRuleKey]bool{doc.Key: true}
	next := doc.ParentKey

	return x.db.View(func(txn *badger.Txn) error {
		for next != nil {
			if seen[*next] {
				return fmt.Errorf("%w: %s reaches %s again", ErrParentCycle, doc.Key, *next)
			}
			seen[*next] = true

			parent, ok, err := x.latestLocked(txn, *next)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			next = parent.ParentKey
		}
		return nil
	})
}

// latestLocked returns the newest accepted state of key: a pending write,
// a write being applied by refresh, or the visible document.
func (x *Index) latestLocked(txn *badger.Txn, key ir.ActiveRuleKey) (ir.ActiveRule, bool, error) {
	if op, ok := x.pending[key]; ok {
		return op.doc, !op.delete, nil
	}
	if op, ok := x.applying[key]; ok {
		return op.doc, !op.delete, nil
	}
	return getDoc(txn, key)
}
