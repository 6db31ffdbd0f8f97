package index

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/activerules/internal/ir"
)

// Filter selects documents by exact field values. Zero fields match
// everything; set fields are combined with AND.
type Filter struct {
	Rule        *ir.RuleKey
	Profile     *ir.ProfileKey
	Severities  []ir.Severity // any of
	MinSeverity ir.Severity   // at least, zero for no bound
	Inheritance *ir.Inheritance
	Parent      *ir.ActiveRuleKey
}

// Matches reports whether doc satisfies every set field of f.
func (f Filter) Matches(doc ir.ActiveRule) bool {
	if f.Rule != nil && doc.RuleKey != *f.Rule {
		return false
	}
	if f.Profile != nil && doc.ProfileKey != *f.Profile {
		return false
	}
	if len(f.Severities) > 0 && !slices.Contains(f.Severities, doc.Severity) {
		return false
	}
	if f.MinSeverity != 0 && doc.Severity < f.MinSeverity {
		return false
	}
	if f.Inheritance != nil && doc.Inheritance != *f.Inheritance {
		return false
	}
	if f.Parent != nil && (doc.ParentKey == nil || *doc.ParentKey != *f.Parent) {
		return false
	}
	return true
}

// GetByKey returns the visible document at key. A key with no visible
// document yields false and a nil error.
func (x *Index) GetByKey(ctx context.Context, key ir.ActiveRuleKey) (ir.ActiveRule, bool, error) {
	if err := x.readable(ctx); err != nil {
		return ir.ActiveRule{}, false, err
	}

	var (
		doc   ir.ActiveRule
		found bool
	)
	err := x.db.View(func(txn *badger.Txn) error {
		var err error
		doc, found, err = getDoc(txn, key)
		return err
	})
	if err != nil {
		return ir.ActiveRule{}, false, fmt.Errorf("get %s: %w", key, err)
	}
	return doc, found, nil
}

// FindByRule returns every visible activation of rule across all profiles,
// ordered by key. The result is empty, never nil, when nothing matches.
func (x *Index) FindByRule(ctx context.Context, rule ir.RuleKey) ([]ir.ActiveRule, error) {
	return x.Find(ctx, Filter{Rule: &rule})
}

// FindByProfile returns every visible activation in profile, ordered by key.
func (x *Index) FindByProfile(ctx context.Context, profile ir.ProfileKey) ([]ir.ActiveRule, error) {
	return x.Find(ctx, Filter{Profile: &profile})
}

// Find returns the visible documents matching f, ordered by key. It scans
// the rule or profile posting list when f names one, and all documents
// otherwise.
func (x *Index) Find(ctx context.Context, f Filter) ([]ir.ActiveRule, error) {
	if err := x.readable(ctx); err != nil {
		return nil, err
	}

	out := []ir.ActiveRule{}
	err := x.db.View(func(txn *badger.Txn) error {
		switch {
		case f.Rule != nil:
			return scanPostings(ctx, txn, rulePrefix(*f.Rule), func(doc ir.ActiveRule) {
				if f.Matches(doc) {
					out = append(out, doc)
				}
			})
		case f.Profile != nil:
			return scanPostings(ctx, txn, profilePrefix(*f.Profile), func(doc ir.ActiveRule) {
				if f.Matches(doc) {
					out = append(out, doc)
				}
			})
		default:
			return scanDocs(ctx, txn, func(doc ir.ActiveRule) {
				if f.Matches(doc) {
					out = append(out, doc)
				}
			})
		}
	})
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	return out, nil
}

// Count returns the number of visible documents.
func (x *Index) Count(ctx context.Context) (int, error) {
	keys, err := x.Keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Keys returns the keys of all visible documents, ordered.
func (x *Index) Keys(ctx context.Context) ([]ir.ActiveRuleKey, error) {
	if err := x.readable(ctx); err != nil {
		return nil, err
	}

	keys := []ir.ActiveRuleKey{}
	err := x.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = docPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key, err := docTarget(it.Item().Key())
			if err != nil {
				return err
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("keys: %w", err)
	}
	return keys, nil
}

func (x *Index) readable(ctx context.Context) error {
	if x.closed.Load() {
		return ErrIndexClosed
	}
	return ctx.Err()
}

func getDoc(txn *badger.Txn, key ir.ActiveRuleKey) (ir.ActiveRule, bool, error) {
	item, err := txn.Get(docKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ir.ActiveRule{}, false, nil
	}
	if err != nil {
		return ir.ActiveRule{}, false, err
	}

	var doc ir.ActiveRule
	err = item.Value(func(val []byte) error {
		doc, err = decodeDoc(val)
		return err
	})
	if err != nil {
		return ir.ActiveRule{}, false, err
	}
	return doc, true, nil
}

func scanPostings(ctx context.Context, txn *badger.Txn, prefix []byte, fn func(ir.ActiveRule)) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		key, err := postingTarget(it.Item().Key())
		if err != nil {
			return err
		}
		doc, ok, err := getDoc(txn, key)
		if err != nil {
			return err
		}
		// A posting without its document is left over from an
		// interrupted write; the document is authoritative.
		if ok {
			fn(doc)
		}
	}
	return nil
}

func scanDocs(ctx context.Context, txn *badger.Txn, fn func(ir.ActiveRule)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = docPrefix()
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var doc ir.ActiveRule
		err := it.Item().Value(func(val []byte) error {
			var err error
			doc, err = decodeDoc(val)
			return err
		})
		if err != nil {
			return err
		}
		fn(doc)
	}
	return nil
}
