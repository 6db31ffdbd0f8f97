package harness

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/activerules/internal/engine"
	"github.com/roach88/activerules/internal/index"
	"github.com/roach88/activerules/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Target   string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s", e.Type)
	if e.Target != "" {
		fmt.Fprintf(&buf, " %s", e.Target)
	}
	fmt.Fprintf(&buf, ": expected %s, got %s", e.Expected, e.Actual)
	return buf.String()
}

func (a Assertion) target() string {
	switch a.Type {
	case AssertGet, AssertAbsent:
		return a.Key
	case AssertFindByRule:
		return a.Rule
	case AssertFindByProfile:
		return a.Profile
	}
	return ""
}

func (a Assertion) fail(expected, actual string) *AssertionError {
	return &AssertionError{Type: a.Type, Target: a.target(), Expected: expected, Actual: actual}
}

// evaluate runs one assertion against the engine's visible state.
// Returns nil when it holds.
func evaluate(ctx context.Context, e *engine.Engine, a Assertion) error {
	x := e.Index()

	switch a.Type {
	case AssertGet:
		key, err := ir.ParseActiveRuleKey(a.Key)
		if err != nil {
			return err
		}
		doc, found, err := x.GetByKey(ctx, key)
		if err != nil {
			return err
		}
		if !found {
			return a.fail("a visible document", "none")
		}
		return matchDocument(a, doc)

	case AssertAbsent:
		key, err := ir.ParseActiveRuleKey(a.Key)
		if err != nil {
			return err
		}
		_, found, err := x.GetByKey(ctx, key)
		if err != nil {
			return err
		}
		if found {
			return a.fail("no visible document", "a document")
		}
		return nil

	case AssertFindByRule:
		rule, err := ir.ParseRuleKey(a.Rule)
		if err != nil {
			return err
		}
		docs, err := x.FindByRule(ctx, rule)
		if err != nil {
			return err
		}
		return matchResults(a, docs)

	case AssertFindByProfile:
		docs, err := x.FindByProfile(ctx, ir.ProfileKey(a.Profile))
		if err != nil {
			return err
		}
		return matchResults(a, docs)

	case AssertFind:
		f, err := a.Filter.filter()
		if err != nil {
			return err
		}
		docs, err := x.Find(ctx, f)
		if err != nil {
			return err
		}
		return matchResults(a, docs)

	case AssertCount:
		n, err := x.Count(ctx)
		if err != nil {
			return err
		}
		if n != *a.Count {
			return a.fail(fmt.Sprintf("%d documents", *a.Count), fmt.Sprintf("%d", n))
		}
		return nil

	case AssertStoreCount:
		rows, err := e.Store().AllActiveRules(ctx)
		if err != nil {
			return err
		}
		if len(rows) != *a.Count {
			return a.fail(fmt.Sprintf("%d activations", *a.Count), fmt.Sprintf("%d", len(rows)))
		}
		return nil
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// matchDocument compares the canonical form of doc with a.Expect. Top-level
// fields are a subset match; nested values must be equal.
func matchDocument(a Assertion, doc ir.ActiveRule) error {
	actual := doc.CanonicalMap()
	for _, field := range slices.Sorted(maps.Keys(a.Expect)) {
		want := a.Expect[field]
		got, present := actual[field]
		switch {
		case want == nil && present:
			return a.fail(field+" absent", fmt.Sprintf("%s=%v", field, got))
		case want == nil:
			continue
		case !present:
			return a.fail(fmt.Sprintf("%s=%v", field, want), field+" absent")
		case !valuesEqual(want, got):
			return a.fail(fmt.Sprintf("%s=%v", field, want), fmt.Sprintf("%s=%v", field, got))
		}
	}
	return nil
}

// valuesEqual compares a YAML value with a canonical map value. Scalars
// compare by their printed form, so params: {max: 10} matches "10".
func valuesEqual(want, got any) bool {
	wm, wok := want.(map[string]any)
	gm, gok := got.(map[string]any)
	if wok || gok {
		if !wok || !gok || len(wm) != len(gm) {
			return false
		}
		for k, wv := range wm {
			gv, ok := gm[k]
			if !ok || !valuesEqual(wv, gv) {
				return false
			}
		}
		return true
	}
	return fmt.Sprint(want) == fmt.Sprint(got)
}

func matchResults(a Assertion, docs []ir.ActiveRule) error {
	if a.Count != nil && len(docs) != *a.Count {
		return a.fail(fmt.Sprintf("%d results", *a.Count), fmt.Sprintf("%d: %v", len(docs), docKeys(docs)))
	}
	if a.Keys != nil {
		got := docKeys(docs)
		if !slices.Equal(a.Keys, got) {
			return a.fail(fmt.Sprintf("keys %v", a.Keys), fmt.Sprintf("keys %v", got))
		}
	}
	return nil
}

func docKeys(docs []ir.ActiveRule) []string {
	keys := make([]string, len(docs))
	for i, d := range docs {
		keys[i] = d.Key.String()
	}
	return keys
}

// filter converts the YAML filter into an index.Filter.
func (f *FilterSpec) filter() (index.Filter, error) {
	var out index.Filter
	if f.Rule != "" {
		rule, err := ir.ParseRuleKey(f.Rule)
		if err != nil {
			return index.Filter{}, err
		}
		out.Rule = &rule
	}
	if f.Profile != "" {
		profile := ir.ProfileKey(f.Profile)
		out.Profile = &profile
	}
	for _, s := range f.Severities {
		sev, err := ir.ParseSeverity(s)
		if err != nil {
			return index.Filter{}, err
		}
		out.Severities = append(out.Severities, sev)
	}
	if f.MinSeverity != "" {
		sev, err := ir.ParseSeverity(f.MinSeverity)
		if err != nil {
			return index.Filter{}, err
		}
		out.MinSeverity = sev
	}
	if f.Inheritance != "" {
		inh, err := ir.ParseInheritance(f.Inheritance)
		if err != nil {
			return index.Filter{}, err
		}
		out.Inheritance = &inh
	}
	if f.Parent != "" {
		parent, err := ir.ParseActiveRuleKey(f.Parent)
		if err != nil {
			return index.Filter{}, err
		}
		out.Parent = &parent
	}
	return out, nil
}
