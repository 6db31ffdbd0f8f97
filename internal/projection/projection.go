// Package projection maps committed relational activation rows into index
// documents.
//
// Project is pure: it performs no I/O and depends only on its arguments.
// Severity and inheritance are stored as loose strings in the relational
// layer; they are parsed into closed enums here and an unrecognized value
// fails the projection instead of drifting into the index.
package projection

import (
	"fmt"

	"github.com/roach88/activerules/internal/ir"
	"github.com/roach88/activerules/internal/store"
)

// Project builds the index document for one activation and its parameters.
// When a parameter name repeats, the later entry wins.
func Project(row store.ActiveRuleRow, params []store.ActiveRuleParamRow) (ir.ActiveRule, error) {
	key := row.Key()
	if err := key.Validate(); err != nil {
		return ir.ActiveRule{}, fmt.Errorf("project active rule %d: %w", row.ID, err)
	}

	severity, err := ir.ParseSeverity(row.Severity)
	if err != nil {
		return ir.ActiveRule{}, fmt.Errorf("project %s: %w", key, err)
	}
	inheritance, err := ir.ParseInheritance(row.Inheritance)
	if err != nil {
		return ir.ActiveRule{}, fmt.Errorf("project %s: %w", key, err)
	}

	doc := ir.ActiveRule{
		Key:         key,
		RuleKey:     key.Rule,
		ProfileKey:  key.Profile,
		Severity:    severity,
		Inheritance: inheritance,
		Params:      make(map[string]string, len(params)),
	}

	if row.ParentKey != "" {
		parent, err := ir.ParseActiveRuleKey(row.ParentKey)
		if err != nil {
			return ir.ActiveRule{}, fmt.Errorf("project %s: parent: %w", key, err)
		}
		doc.ParentKey = &parent
	}

	for _, p := range params {
		doc.Params[p.Key] = p.Value
	}
	return doc, nil
}
