package testutil

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/activerules/internal/ir"
	"github.com/roach88/activerules/internal/store"
)

// Builder creates rows inside one session, reusing rows it already made.
type Builder struct {
	sess       *store.Session
	profiles   map[string]*store.ProfileRow
	rules      map[ir.RuleKey]*store.RuleRow
	ruleParams map[ir.RuleKey]map[string]*store.RuleParamRow
	active     map[ir.ActiveRuleKey]*store.ActiveRuleRow
}

// NewBuilder returns a Builder writing through sess.
func NewBuilder(sess *store.Session) *Builder {
	return &Builder{
		sess:       sess,
		profiles:   map[string]*store.ProfileRow{},
		rules:      map[ir.RuleKey]*store.RuleRow{},
		ruleParams: map[ir.RuleKey]map[string]*store.RuleParamRow{},
		active:     map[ir.ActiveRuleKey]*store.ActiveRuleRow{},
	}
}

// Profile returns the profile named name, inserting it on first use.
func (b *Builder) Profile(ctx context.Context, name string) (*store.ProfileRow, error) {
	if p, ok := b.profiles[name]; ok {
		return p, nil
	}
	p := NewProfileRow(name, "js")
	if err := b.sess.InsertProfile(ctx, p); err != nil {
		return nil, err
	}
	b.profiles[name] = p
	return p, nil
}

// Rule returns the rule with key, inserting it on first use.
func (b *Builder) Rule(ctx context.Context, key ir.RuleKey) (*store.RuleRow, error) {
	if r, ok := b.rules[key]; ok {
		return r, nil
	}
	r := NewRuleRow(key)
	if err := b.sess.InsertRule(ctx, r); err != nil {
		return nil, err
	}
	b.rules[key] = r
	return r, nil
}

// RuleParam returns the STRING parameter name of rule, declaring it on
// first use.
func (b *Builder) RuleParam(ctx context.Context, rule *store.RuleRow, name string) (*store.RuleParamRow, error) {
	byName := b.ruleParams[rule.Key()]
	if byName == nil {
		byName = map[string]*store.RuleParamRow{}
		b.ruleParams[rule.Key()] = byName
	}
	if p, ok := byName[name]; ok {
		return p, nil
	}
	p := &store.RuleParamRow{Name: name, Type: "STRING"}
	if err := b.sess.AddRuleParam(ctx, rule, p); err != nil {
		return nil, err
	}
	byName[name] = p
	return p, nil
}

// Activate inserts the activation described by a.
func (b *Builder) Activate(ctx context.Context, a Activation) (*store.ActiveRuleRow, error) {
	profile, err := b.Profile(ctx, a.Profile)
	if err != nil {
		return nil, err
	}
	rule, err := b.Rule(ctx, a.Rule)
	if err != nil {
		return nil, err
	}

	row := store.NewActiveRuleRow(profile, rule)
	row.Severity = a.Severity
	row.Inheritance = a.Inheritance
	if a.Parent != nil {
		parent, ok := b.active[*a.Parent]
		if !ok {
			return nil, fmt.Errorf("activate %s:%s: parent %s not created in this session", a.Profile, a.Rule, *a.Parent)
		}
		row.SetParent(parent)
	}
	if err := b.sess.InsertActiveRule(ctx, row); err != nil {
		return nil, err
	}
	b.active[row.Key()] = row

	for _, name := range slices.Sorted(maps.Keys(a.Params)) {
		rp, err := b.RuleParam(ctx, rule, name)
		if err != nil {
			return nil, err
		}
		if err := b.sess.AddActiveRuleParam(ctx, row, store.NewActiveRuleParamRow(rp, a.Params[name])); err != nil {
			return nil, err
		}
	}
	return row, nil
}
