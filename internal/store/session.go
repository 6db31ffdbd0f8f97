package store

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/activerules/internal/ir"
	"github.com/roach88/activerules/internal/queryir"
)

// ChangeSet lists the activations touched by one committed transaction.
// A key appears in at most one of the two lists; both are sorted by key.
type ChangeSet struct {
	Upserted []ir.ActiveRuleKey
	Deleted  []ir.ActiveRuleKey
}

// Empty reports whether the transaction touched no activation.
func (c ChangeSet) Empty() bool {
	return len(c.Upserted) == 0 && len(c.Deleted) == 0
}

// Len returns the number of touched keys.
func (c ChangeSet) Len() int {
	return len(c.Upserted) + len(c.Deleted)
}

// CommitHook is called after a transaction commits. The rows named by
// changes are committed and readable through the Store when the hook runs.
type CommitHook func(ctx context.Context, changes ChangeSet) error

type changeKind int

const (
	changeUpsert changeKind = iota + 1
	changeDelete
)

// Session is one relational transaction. Writes made through it are
// invisible to hooks and to Store reads until Commit.
//
// A Session holds the store's only connection while open; do not call
// Store read methods until it is committed or rolled back. The Session's
// own finders are safe to use and see its uncommitted writes.
type Session struct {
	reader
	store   *Store
	tx      *sql.Tx
	changes map[ir.ActiveRuleKey]changeKind
	done    bool
}

// OpenSession starts a transaction.
func (s *Store) OpenSession(ctx context.Context) (*Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return &Session{
		reader:  reader{q: tx},
		store:   s,
		tx:      tx,
		changes: make(map[ir.ActiveRuleKey]changeKind),
	}, nil
}

// WithSession runs fn in a session and commits it when fn succeeds.
// Any error from fn rolls the session back. The returned error may wrap
// ErrPostCommit, in which case the writes are committed.
func (s *Store) WithSession(ctx context.Context, fn func(*Session) error) error {
	sess, err := s.OpenSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Rollback()

	if err := fn(sess); err != nil {
		return err
	}
	return sess.Commit(ctx)
}

// Commit commits the transaction and then runs every registered hook with
// the touched activation keys. Hook failures do not undo the commit; they
// are joined and returned wrapped in ErrPostCommit.
func (sess *Session) Commit(ctx context.Context) error {
	if sess.done {
		return ErrSessionClosed
	}
	sess.done = true

	if err := sess.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	changes := sess.changeSet()
	if changes.Empty() {
		return nil
	}

	var errs []error
	for _, hook := range sess.store.commitHooks() {
		if err := hook(ctx, changes); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrPostCommit, errors.Join(errs...))
	}
	return nil
}

// Rollback discards the transaction. Hooks are not called.
// Rollback after Commit is a no-op, so it is safe to defer.
func (sess *Session) Rollback() error {
	if sess.done {
		return nil
	}
	sess.done = true
	if err := sess.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// Pending returns the changes recorded so far.
func (sess *Session) Pending() ChangeSet {
	return sess.changeSet()
}

func (sess *Session) changeSet() ChangeSet {
	var cs ChangeSet
	for key, kind := range sess.changes {
		switch kind {
		case changeUpsert:
			cs.Upserted = append(cs.Upserted, key)
		case changeDelete:
			cs.Deleted = append(cs.Deleted, key)
		}
	}
	byKey := func(a, b ir.ActiveRuleKey) int { return cmp.Compare(a.String(), b.String()) }
	slices.SortFunc(cs.Upserted, byKey)
	slices.SortFunc(cs.Deleted, byKey)
	return cs
}

func (sess *Session) check() error {
	if sess.done {
		return ErrSessionClosed
	}
	return nil
}

// InsertProfile inserts a profile. A key is generated when Kee is empty.
func (sess *Session) InsertProfile(ctx context.Context, p *ProfileRow) error {
	if err := sess.check(); err != nil {
		return err
	}
	if p.Kee == "" {
		p.Kee = sess.store.keyGenerator().Generate()
	}
	if err := p.Key().Validate(); err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}

	res, err := sess.tx.ExecContext(ctx, `
		INSERT INTO quality_profiles (kee, name, language, parent_kee)
		VALUES (?, ?, ?, ?)
	`, p.Kee, p.Name, p.Language, nullString(p.ParentKee))
	if err != nil {
		return fmt.Errorf("insert profile %s: %w", p.Kee, err)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert profile %s: %w", p.Kee, err)
	}
	return nil
}

// InsertRule inserts a rule definition.
func (sess *Session) InsertRule(ctx context.Context, r *RuleRow) error {
	if err := sess.check(); err != nil {
		return err
	}
	if err := r.Key().Validate(); err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}

	res, err := sess.tx.ExecContext(ctx, `
		INSERT INTO rules (plugin_name, plugin_rule_key, plugin_config_key, name,
			description, status, language, priority, cardinality)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.Repository, r.RuleKey, nullString(r.ConfigKey), nullString(r.Name),
		nullString(r.Description), nullString(r.Status), nullString(r.Language),
		nullString(r.Severity), nullString(r.Cardinality))
	if err != nil {
		return fmt.Errorf("insert rule %s: %w", r.Key(), err)
	}
	r.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert rule %s: %w", r.Key(), err)
	}
	return nil
}

// AddRuleParam declares a parameter on a rule.
func (sess *Session) AddRuleParam(ctx context.Context, rule *RuleRow, p *RuleParamRow) error {
	if err := sess.check(); err != nil {
		return err
	}
	p.RuleID = rule.ID

	res, err := sess.tx.ExecContext(ctx, `
		INSERT INTO rules_parameters (rule_id, name, param_type, default_value, description)
		VALUES (?, ?, ?, ?, ?)
	`, p.RuleID, p.Name, p.Type, nullString(p.DefaultValue), nullString(p.Description))
	if err != nil {
		return fmt.Errorf("add param %s to rule %s: %w", p.Name, rule.Key(), err)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("add param %s to rule %s: %w", p.Name, rule.Key(), err)
	}
	return nil
}

// InsertActiveRule activates a rule in a profile. The key columns of a are
// refreshed from the database after the insert.
func (sess *Session) InsertActiveRule(ctx context.Context, a *ActiveRuleRow) error {
	if err := sess.check(); err != nil {
		return err
	}

	res, err := sess.tx.ExecContext(ctx, `
		INSERT INTO active_rules (profile_id, rule_id, failure_level, inheritance, parent_id)
		VALUES (?, ?, ?, ?, ?)
	`, a.ProfileID, a.RuleID, a.Severity, nullString(a.Inheritance), nullInt64(a.ParentID))
	if err != nil {
		return fmt.Errorf("insert active rule (profile %d, rule %d): %w", a.ProfileID, a.RuleID, err)
	}
	a.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert active rule (profile %d, rule %d): %w", a.ProfileID, a.RuleID, err)
	}

	stored, err := sess.activeRuleByID(ctx, a.ID)
	if err != nil {
		return err
	}
	*a = stored
	sess.changes[a.Key()] = changeUpsert
	return nil
}

// UpdateActiveRule rewrites the severity, inheritance and parent of an
// activation. Profile and rule are immutable.
func (sess *Session) UpdateActiveRule(ctx context.Context, a *ActiveRuleRow) error {
	if err := sess.check(); err != nil {
		return err
	}

	res, err := sess.tx.ExecContext(ctx, `
		UPDATE active_rules SET failure_level = ?, inheritance = ?, parent_id = ?
		WHERE id = ?
	`, a.Severity, nullString(a.Inheritance), nullInt64(a.ParentID), a.ID)
	if err != nil {
		return fmt.Errorf("update active rule %d: %w", a.ID, err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("update active rule %d: %w", a.ID, err)
	}

	stored, err := sess.activeRuleByID(ctx, a.ID)
	if err != nil {
		return err
	}
	*a = stored
	sess.changes[a.Key()] = changeUpsert
	return nil
}

// DeleteActiveRule removes an activation and its parameters. Activations
// that referenced it as parent lose the reference and are reported as
// upserted.
func (sess *Session) DeleteActiveRule(ctx context.Context, a *ActiveRuleRow) error {
	if err := sess.check(); err != nil {
		return err
	}

	stored, err := sess.activeRuleByID(ctx, a.ID)
	if err != nil {
		return err
	}
	children, err := selectRows(ctx, sess.tx,
		activeRuleQuery(queryir.Equals{Field: "parent_id", Value: a.ID}), scanActiveRule)
	if err != nil {
		return fmt.Errorf("delete active rule %s: find children: %w", stored.Key(), err)
	}

	res, err := sess.tx.ExecContext(ctx, `DELETE FROM active_rules WHERE id = ?`, a.ID)
	if err != nil {
		return fmt.Errorf("delete active rule %s: %w", stored.Key(), err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("delete active rule %s: %w", stored.Key(), err)
	}

	sess.changes[stored.Key()] = changeDelete
	for _, child := range children {
		sess.changes[child.Key()] = changeUpsert
	}
	return nil
}

// DeleteProfile removes a profile together with its activations.
func (sess *Session) DeleteProfile(ctx context.Context, p *ProfileRow) error {
	if err := sess.check(); err != nil {
		return err
	}

	owned, err := selectRows(ctx, sess.tx,
		activeRuleQuery(queryir.Equals{Field: "profile_id", Value: p.ID}), scanActiveRule)
	if err != nil {
		return fmt.Errorf("delete profile %s: %w", p.Kee, err)
	}
	for i := range owned {
		if err := sess.DeleteActiveRule(ctx, &owned[i]); err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("delete profile %s: %w", p.Kee, err)
		}
	}

	res, err := sess.tx.ExecContext(ctx, `DELETE FROM quality_profiles WHERE id = ?`, p.ID)
	if err != nil {
		return fmt.Errorf("delete profile %s: %w", p.Kee, err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("delete profile %s: %w", p.Kee, err)
	}
	return nil
}

// AddActiveRuleParam sets a parameter value on an activation.
func (sess *Session) AddActiveRuleParam(ctx context.Context, a *ActiveRuleRow, p *ActiveRuleParamRow) error {
	if err := sess.check(); err != nil {
		return err
	}
	p.ActiveRuleID = a.ID

	res, err := sess.tx.ExecContext(ctx, `
		INSERT INTO active_rule_parameters (active_rule_id, rules_parameter_id, rules_parameter_key, value)
		VALUES (?, ?, ?, ?)
	`, p.ActiveRuleID, nullInt64(p.RuleParamID), p.Key, p.Value)
	if err != nil {
		return fmt.Errorf("add param %s to active rule %d: %w", p.Key, a.ID, err)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("add param %s to active rule %d: %w", p.Key, a.ID, err)
	}
	return sess.touch(ctx, p.ActiveRuleID)
}

// UpdateActiveRuleParam changes the value of an existing parameter.
func (sess *Session) UpdateActiveRuleParam(ctx context.Context, p *ActiveRuleParamRow) error {
	if err := sess.check(); err != nil {
		return err
	}

	res, err := sess.tx.ExecContext(ctx,
		`UPDATE active_rule_parameters SET value = ? WHERE id = ?`, p.Value, p.ID)
	if err != nil {
		return fmt.Errorf("update active rule param %d: %w", p.ID, err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("update active rule param %d: %w", p.ID, err)
	}
	return sess.touch(ctx, p.ActiveRuleID)
}

// DeleteActiveRuleParam removes a parameter from an activation.
func (sess *Session) DeleteActiveRuleParam(ctx context.Context, p *ActiveRuleParamRow) error {
	if err := sess.check(); err != nil {
		return err
	}

	res, err := sess.tx.ExecContext(ctx, `DELETE FROM active_rule_parameters WHERE id = ?`, p.ID)
	if err != nil {
		return fmt.Errorf("delete active rule param %d: %w", p.ID, err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("delete active rule param %d: %w", p.ID, err)
	}
	return sess.touch(ctx, p.ActiveRuleID)
}

// touch records the activation with the given id as upserted.
func (sess *Session) touch(ctx context.Context, activeRuleID int64) error {
	a, err := sess.activeRuleByID(ctx, activeRuleID)
	if err != nil {
		return err
	}
	sess.changes[a.Key()] = changeUpsert
	return nil
}

func (sess *Session) activeRuleByID(ctx context.Context, id int64) (ActiveRuleRow, error) {
	rows, err := selectRows(ctx, sess.tx,
		activeRuleQuery(queryir.Equals{Field: "id", Value: id}), scanActiveRule)
	if err != nil {
		return ActiveRuleRow{}, fmt.Errorf("active rule %d: %w", id, err)
	}
	if len(rows) == 0 {
		return ActiveRuleRow{}, fmt.Errorf("active rule %d: %w", id, ErrNotFound)
	}
	return rows[0], nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}
