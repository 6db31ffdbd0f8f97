package ir

import (
	"fmt"
	"maps"
)

// ActiveRule is the denormalized index document for one activation.
//
// Key is derived from (ProfileKey, RuleKey) and never reassigned.
// ParentKey is set only when Inheritance is not NONE.
type ActiveRule struct {
	Key         ActiveRuleKey     `json:"key"`
	RuleKey     RuleKey           `json:"rule_key"`
	ProfileKey  ProfileKey        `json:"profile_key"`
	Severity    Severity          `json:"severity"`
	Inheritance Inheritance       `json:"inheritance"`
	ParentKey   *ActiveRuleKey    `json:"parent_key,omitempty"`
	Params      map[string]string `json:"params"`
}

// Validate checks the document invariants that can be verified without
// looking at other documents. Parent chain cycles longer than one hop are
// checked by the index at write time.
func (a ActiveRule) Validate() error {
	if err := a.Key.Validate(); err != nil {
		return err
	}
	if a.Key.Profile != a.ProfileKey {
		return fmt.Errorf("%w: key %s does not belong to profile %q", ErrInvalidDocument, a.Key, a.ProfileKey)
	}
	if a.Key.Rule != a.RuleKey {
		return fmt.Errorf("%w: key %s does not belong to rule %s", ErrInvalidDocument, a.Key, a.RuleKey)
	}
	if !a.Severity.Valid() {
		return fmt.Errorf("%w: %s: severity %d", ErrUnknownEnum, a.Key, int(a.Severity))
	}
	if !a.Inheritance.Valid() {
		return fmt.Errorf("%w: %s: inheritance %d", ErrUnknownEnum, a.Key, int(a.Inheritance))
	}
	if a.ParentKey != nil {
		if a.Inheritance == InheritanceNone {
			return fmt.Errorf("%w: %s has a parent but inheritance NONE", ErrInvalidDocument, a.Key)
		}
		if err := a.ParentKey.Validate(); err != nil {
			return fmt.Errorf("%w: parent of %s: %w", ErrInvalidDocument, a.Key, err)
		}
		if *a.ParentKey == a.Key {
			return fmt.Errorf("%w: %s references itself as parent", ErrInvalidDocument, a.Key)
		}
	}
	return nil
}

// Clone returns a deep copy. Params is never nil in the copy.
func (a ActiveRule) Clone() ActiveRule {
	out := a
	if a.ParentKey != nil {
		p := *a.ParentKey
		out.ParentKey = &p
	}
	out.Params = make(map[string]string, len(a.Params))
	maps.Copy(out.Params, a.Params)
	return out
}

// Equal reports whether two documents carry the same content.
// A nil and an empty Params map are equal.
func (a ActiveRule) Equal(b ActiveRule) bool {
	if a.Key != b.Key || a.RuleKey != b.RuleKey || a.ProfileKey != b.ProfileKey {
		return false
	}
	if a.Severity != b.Severity || a.Inheritance != b.Inheritance {
		return false
	}
	if (a.ParentKey == nil) != (b.ParentKey == nil) {
		return false
	}
	if a.ParentKey != nil && *a.ParentKey != *b.ParentKey {
		return false
	}
	return maps.Equal(a.Params, b.Params)
}
