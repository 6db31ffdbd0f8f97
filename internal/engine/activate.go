package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/activerules/internal/ir"
	"github.com/roach88/activerules/internal/store"
)

// ErrInvalidRequest is returned when an activation request cannot be
// applied as given.
var ErrInvalidRequest = errors.New("invalid request")

// DefaultParamType is the type declared for rule parameters created on
// demand by Activate.
const DefaultParamType = "STRING"

// ActivateRequest describes the desired state of one activation.
type ActivateRequest struct {
	Profile     ir.ProfileKey
	Rule        ir.RuleKey
	Severity    ir.Severity
	Inheritance ir.Inheritance
	Parent      *ir.ActiveRuleKey

	// Params replaces the activation's parameters. Nil clears them.
	Params map[string]string

	// Language is used only when the profile does not exist yet.
	Language string
}

// Key returns the key of the requested activation.
func (r ActivateRequest) Key() ir.ActiveRuleKey {
	return ir.NewActiveRuleKey(r.Profile, r.Rule)
}

func (r ActivateRequest) validate() error {
	if err := r.Key().Validate(); err != nil {
		return err
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("%w: severity %d", ErrInvalidRequest, r.Severity)
	}
	if !r.Inheritance.Valid() {
		return fmt.Errorf("%w: inheritance %d", ErrInvalidRequest, r.Inheritance)
	}
	if r.Parent == nil {
		return nil
	}
	if r.Inheritance == ir.InheritanceNone {
		return fmt.Errorf("%w: a parent requires inheritance INHERIT or OVERRIDES", ErrInvalidRequest)
	}
	if err := r.Parent.Validate(); err != nil {
		return fmt.Errorf("%w: parent: %w", ErrInvalidRequest, err)
	}
	if *r.Parent == r.Key() {
		return fmt.Errorf("%w: %s cannot be its own parent", ErrInvalidRequest, r.Key())
	}
	return nil
}

// Activate creates or updates the activation described by req in one
// transaction. A missing rule is created with the parameters req needs; a
// missing profile is created when req.Language is set. The parent must
// already exist.
//
// The change is pending in the index once Activate returns; call Refresh
// to make it visible.
func (e *Engine) Activate(ctx context.Context, req ActivateRequest) error {
	if err := req.validate(); err != nil {
		return fmt.Errorf("activate %s: %w", req.Key(), err)
	}

	key := req.Key()
	err := e.store.WithSession(ctx, func(sess *store.Session) error {
		profile, err := ensureProfile(ctx, sess, key.Profile, req.Language)
		if err != nil {
			return err
		}
		rule, err := ensureRule(ctx, sess, key.Rule)
		if err != nil {
			return err
		}

		row, exists, err := sess.FindActiveRuleByKey(ctx, req.Key())
		if err != nil {
			return err
		}
		if !exists {
			row = *store.NewActiveRuleRow(&profile, &rule)
		}
		row.Severity = req.Severity.String()
		row.Inheritance = ""
		if req.Inheritance != ir.InheritanceNone {
			row.Inheritance = req.Inheritance.String()
		}
		row.ParentID, row.ParentKey = 0, ""
		if req.Parent != nil {
			parent, ok, err := sess.FindActiveRuleByKey(ctx, *req.Parent)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: parent %s: %w", ErrInvalidRequest, *req.Parent, store.ErrNotFound)
			}
			if err := checkParentChain(ctx, sess, key, parent); err != nil {
				return err
			}
			row.SetParent(&parent)
		}

		if exists {
			err = sess.UpdateActiveRule(ctx, &row)
		} else {
			err = sess.InsertActiveRule(ctx, &row)
		}
		if err != nil {
			return err
		}
		return replaceParams(ctx, sess, &rule, &row, req.Params)
	})
	if err != nil {
		return fmt.Errorf("activate %s: %w", req.Key(), err)
	}

	e.logger.Debug("activation committed", "key", req.Key(), "severity", req.Severity)
	return nil
}

// Deactivate deletes the activation with key. Activations inheriting from
// it lose their parent link. Returns store.ErrNotFound when there is no
// such activation.
func (e *Engine) Deactivate(ctx context.Context, key ir.ActiveRuleKey) error {
	err := e.store.WithSession(ctx, func(sess *store.Session) error {
		row, ok, err := sess.FindActiveRuleByKey(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return store.ErrNotFound
		}
		return sess.DeleteActiveRule(ctx, &row)
	})
	if err != nil {
		return fmt.Errorf("deactivate %s: %w", key, err)
	}

	e.logger.Debug("activation deleted", "key", key)
	return nil
}

// CreateProfile creates a profile with a generated key and returns the
// key. Activations can then name it without passing a language.
func (e *Engine) CreateProfile(ctx context.Context, name, language string) (ir.ProfileKey, error) {
	if name == "" || language == "" {
		return "", fmt.Errorf("create profile: %w: name and language are required", ErrInvalidRequest)
	}
	profile := store.ProfileRow{Name: name, Language: language}
	err := e.store.WithSession(ctx, func(sess *store.Session) error {
		return sess.InsertProfile(ctx, &profile)
	})
	if err != nil {
		return "", fmt.Errorf("create profile %q: %w", name, err)
	}

	e.logger.Debug("profile created", "key", profile.Kee, "name", name)
	return profile.Key(), nil
}

// DeleteProfile deletes a profile and every activation in it.
func (e *Engine) DeleteProfile(ctx context.Context, key ir.ProfileKey) error {
	err := e.store.WithSession(ctx, func(sess *store.Session) error {
		profile, ok, err := sess.FindProfile(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return store.ErrNotFound
		}
		return sess.DeleteProfile(ctx, &profile)
	})
	if err != nil {
		return fmt.Errorf("delete profile %s: %w", key, err)
	}
	return nil
}

// checkParentChain walks up from parent and rejects the request when the
// chain reaches key. The walk reads through the session, so it sees the
// rows this transaction has already written.
func checkParentChain(ctx context.Context, sess *store.Session, key ir.ActiveRuleKey, parent store.ActiveRuleRow) error {
	seen := map[ir.ActiveRuleKey]bool{parent.Key(): true}
	cur := parent
	for cur.ParentKey != "" {
		next, err := ir.ParseActiveRuleKey(cur.ParentKey)
		if err != nil {
			return fmt.Errorf("parent chain of %s: %w", key, err)
		}
		if next == key {
			return fmt.Errorf("%w: parent %s would make %s its own ancestor", ErrInvalidRequest, parent.Key(), key)
		}
		if seen[next] {
			return nil
		}
		seen[next] = true

		row, ok, err := sess.FindActiveRuleByKey(ctx, next)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		cur = row
	}
	return nil
}

func ensureProfile(ctx context.Context, sess *store.Session, key ir.ProfileKey, language string) (store.ProfileRow, error) {
	profile, ok, err := sess.FindProfile(ctx, key)
	if err != nil || ok {
		return profile, err
	}
	if language == "" {
		return store.ProfileRow{}, fmt.Errorf("%w: profile %s does not exist and no language was given", ErrInvalidRequest, key)
	}
	profile = store.ProfileRow{Kee: string(key), Name: string(key), Language: language}
	if err := sess.InsertProfile(ctx, &profile); err != nil {
		return store.ProfileRow{}, err
	}
	return profile, nil
}

func ensureRule(ctx context.Context, sess *store.Session, key ir.RuleKey) (store.RuleRow, error) {
	rule, ok, err := sess.FindRule(ctx, key)
	if err != nil || ok {
		return rule, err
	}
	rule = store.RuleRow{Repository: key.Repository, RuleKey: key.Rule, Name: key.Rule}
	if err := sess.InsertRule(ctx, &rule); err != nil {
		return store.RuleRow{}, err
	}
	return rule, nil
}

// replaceParams makes the activation's parameters equal to want, declaring
// rule parameters that do not exist yet.
func replaceParams(ctx context.Context, sess *store.Session, rule *store.RuleRow, row *store.ActiveRuleRow, want map[string]string) error {
	current, err := sess.FindActiveRuleParams(ctx, row.ID)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(current))
	for i := range current {
		p := &current[i]
		value, keep := want[p.Key]
		switch {
		case !keep || seen[p.Key]:
			err = sess.DeleteActiveRuleParam(ctx, p)
		case p.Value != value:
			p.Value = value
			err = sess.UpdateActiveRuleParam(ctx, p)
		}
		if err != nil {
			return err
		}
		seen[p.Key] = true
	}

	missing := slices.DeleteFunc(slices.Sorted(maps.Keys(want)), func(name string) bool { return seen[name] })
	if len(missing) == 0 {
		return nil
	}

	declared, err := sess.FindRuleParams(ctx, rule.ID)
	if err != nil {
		return err
	}
	byName := make(map[string]store.RuleParamRow, len(declared))
	for _, d := range declared {
		byName[d.Name] = d
	}

	for _, name := range missing {
		rp, ok := byName[name]
		if !ok {
			rp = store.RuleParamRow{Name: name, Type: DefaultParamType}
			if err := sess.AddRuleParam(ctx, rule, &rp); err != nil {
				return err
			}
		}
		if err := sess.AddActiveRuleParam(ctx, row, store.NewActiveRuleParamRow(&rp, want[name])); err != nil {
			return err
		}
	}
	return nil
}
