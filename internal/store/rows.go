package store

import (
	"github.com/roach88/activerules/internal/ir"
)

// ProfileRow is a quality profile.
type ProfileRow struct {
	ID        int64
	Kee       string // generated when empty on insert
	Name      string
	Language  string
	ParentKee string // empty when the profile has no parent
}

// Key returns the profile key used in index documents.
func (p ProfileRow) Key() ir.ProfileKey {
	return ir.ProfileKey(p.Kee)
}

// RuleRow is a rule definition. Only Repository and RuleKey take part in
// activation keys; the remaining columns are descriptive.
type RuleRow struct {
	ID          int64
	Repository  string
	RuleKey     string
	ConfigKey   string
	Name        string
	Description string
	Status      string
	Language    string
	Severity    string
	Cardinality string
}

// Key returns the rule key.
func (r RuleRow) Key() ir.RuleKey {
	return ir.NewRuleKey(r.Repository, r.RuleKey)
}

// RuleParamRow is a parameter declared by a rule.
type RuleParamRow struct {
	ID           int64
	RuleID       int64
	Name         string
	Type         string
	DefaultValue string
	Description  string
}

// ActiveRuleRow is one activation of a rule in a profile.
//
// Severity and Inheritance are stored as loosely typed strings; they are
// parsed into closed enums only when projected into an index document.
// ParentKey is filled on reads from the parent activation's composite key.
type ActiveRuleRow struct {
	ID          int64
	ProfileID   int64
	RuleID      int64
	ProfileKee  string
	Repository  string
	RuleKey     string
	Severity    string
	Inheritance string
	ParentID    int64 // 0 when there is no parent
	ParentKey   string
}

// NewActiveRuleRow prepares an activation of rule in profile. Both must have
// been inserted so their IDs are known.
func NewActiveRuleRow(profile *ProfileRow, rule *RuleRow) *ActiveRuleRow {
	return &ActiveRuleRow{
		ProfileID:  profile.ID,
		RuleID:     rule.ID,
		ProfileKee: profile.Kee,
		Repository: rule.Repository,
		RuleKey:    rule.RuleKey,
	}
}

// Key returns the composite key of the activation.
func (a ActiveRuleRow) Key() ir.ActiveRuleKey {
	return ir.NewActiveRuleKey(ir.ProfileKey(a.ProfileKee), ir.NewRuleKey(a.Repository, a.RuleKey))
}

// SetParent links the activation to the one it inherits from or overrides.
func (a *ActiveRuleRow) SetParent(parent *ActiveRuleRow) *ActiveRuleRow {
	a.ParentID = parent.ID
	a.ParentKey = parent.Key().String()
	return a
}

// ActiveRuleParamRow is a parameter value set on an activation.
type ActiveRuleParamRow struct {
	ID           int64
	ActiveRuleID int64
	RuleParamID  int64 // 0 when the rule parameter was removed
	Key          string
	Value        string
}

// NewActiveRuleParamRow prepares a value for the given rule parameter.
func NewActiveRuleParamRow(param *RuleParamRow, value string) *ActiveRuleParamRow {
	return &ActiveRuleParamRow{
		RuleParamID: param.ID,
		Key:         param.Name,
		Value:       value,
	}
}
