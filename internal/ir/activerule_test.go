package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestActiveRule(profile, rule string) ActiveRule {
	rk := MustParseRuleKey(rule)
	return ActiveRule{
		Key:         NewActiveRuleKey(ProfileKey(profile), rk),
		RuleKey:     rk,
		ProfileKey:  ProfileKey(profile),
		Severity:    SeverityBlocker,
		Inheritance: InheritanceNone,
		Params:      map[string]string{},
	}
}

func TestActiveRule_Validate(t *testing.T) {
	doc := newTestActiveRule("myprofile", "javascript:S001")
	assert.NoError(t, doc.Validate())
}

func TestActiveRule_Validate_KeyMismatch(t *testing.T) {
	doc := newTestActiveRule("myprofile", "javascript:S001")
	doc.ProfileKey = "other"
	assert.ErrorIs(t, doc.Validate(), ErrInvalidDocument)

	doc = newTestActiveRule("myprofile", "javascript:S001")
	doc.RuleKey = MustParseRuleKey("javascript:S002")
	assert.ErrorIs(t, doc.Validate(), ErrInvalidDocument)
}

func TestActiveRule_Validate_SelfParent(t *testing.T) {
	doc := newTestActiveRule("myprofile", "javascript:S001")
	doc.Inheritance = InheritanceInherit
	self := doc.Key
	doc.ParentKey = &self
	assert.ErrorIs(t, doc.Validate(), ErrInvalidDocument)
}

func TestActiveRule_Validate_ParentRequiresInheritance(t *testing.T) {
	doc := newTestActiveRule("child", "javascript:S001")
	parent := MustParseActiveRuleKey("parent:javascript:S001")
	doc.ParentKey = &parent
	assert.ErrorIs(t, doc.Validate(), ErrInvalidDocument)

	doc.Inheritance = InheritanceOverrides
	assert.NoError(t, doc.Validate())
}

func TestActiveRule_Validate_InvalidSeverity(t *testing.T) {
	doc := newTestActiveRule("myprofile", "javascript:S001")
	doc.Severity = 0
	assert.ErrorIs(t, doc.Validate(), ErrUnknownEnum)
}

func TestActiveRule_CloneIsDeep(t *testing.T) {
	doc := newTestActiveRule("child", "javascript:S001")
	doc.Inheritance = InheritanceInherit
	parent := MustParseActiveRuleKey("parent:javascript:S001")
	doc.ParentKey = &parent
	doc.Params["min"] = "minimum"

	clone := doc.Clone()
	clone.Params["min"] = "changed"
	clone.ParentKey.Profile = "elsewhere"

	assert.Equal(t, "minimum", doc.Params["min"])
	assert.Equal(t, ProfileKey("parent"), doc.ParentKey.Profile)
}

func TestActiveRule_Equal(t *testing.T) {
	a := newTestActiveRule("myprofile", "javascript:S001")
	b := a.Clone()
	assert.True(t, a.Equal(b))

	a.Params = nil
	b.Params = map[string]string{}
	assert.True(t, a.Equal(b), "nil and empty params are equal")

	b.Severity = SeverityMinor
	assert.False(t, a.Equal(b))
}

func TestActiveRule_JSON(t *testing.T) {
	doc := newTestActiveRule("myprofile", "javascript:S001")
	doc.Params["max"] = "maximum"

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"key": "myprofile:javascript:S001",
		"rule_key": "javascript:S001",
		"profile_key": "myprofile",
		"severity": "BLOCKER",
		"inheritance": "NONE",
		"params": {"max": "maximum"}
	}`, string(data))

	var decoded ActiveRule
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, doc.Equal(decoded))
}
