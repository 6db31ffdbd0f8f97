package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRuleKey(t *testing.T) {
	k, err := ParseRuleKey("javascript:S001")
	require.NoError(t, err)
	assert.Equal(t, "javascript", k.Repository)
	assert.Equal(t, "S001", k.Rule)
	assert.Equal(t, "javascript:S001", k.String())
}

func TestParseRuleKey_RuleMayContainSeparator(t *testing.T) {
	k, err := ParseRuleKey("common-java:Foo:Bar")
	require.NoError(t, err)
	assert.Equal(t, "common-java", k.Repository)
	assert.Equal(t, "Foo:Bar", k.Rule)
}

func TestParseRuleKey_Malformed(t *testing.T) {
	tests := []string{"", "javascript", ":S001", "javascript:", "java\x00script:S001"}
	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			_, err := ParseRuleKey(in)
			assert.ErrorIs(t, err, ErrMalformedKey)
		})
	}
}

func TestParseActiveRuleKey_RoundTrip(t *testing.T) {
	k := NewActiveRuleKey("myprofile", NewRuleKey("javascript", "S001"))
	assert.Equal(t, "myprofile:javascript:S001", k.String())

	parsed, err := ParseActiveRuleKey(k.String())
	require.NoError(t, err)
	assert.Equal(t, k, parsed)
}

func TestParseActiveRuleKey_Malformed(t *testing.T) {
	tests := []string{"", "myprofile", "myprofile:javascript", ":javascript:S001"}
	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			_, err := ParseActiveRuleKey(in)
			assert.ErrorIs(t, err, ErrMalformedKey)
		})
	}
}

func TestActiveRuleKey_Deterministic(t *testing.T) {
	a := NewActiveRuleKey("p", NewRuleKey("r", "x"))
	b := NewActiveRuleKey("p", NewRuleKey("r", "x"))
	assert.Equal(t, a, b)
	assert.Equal(t, a.String(), b.String())
}

func TestNewRuleKey_NormalizesNFC(t *testing.T) {
	// "é" as e + combining acute accent
	decomposed := NewRuleKey("repo", "cafe\u0301")
	composed := NewRuleKey("repo", "caf\u00e9")
	assert.Equal(t, composed, decomposed)
}

func TestValidate_RejectsDecomposedKeys(t *testing.T) {
	decomposed := "cafe\u0301"

	assert.ErrorIs(t, ProfileKey(decomposed).Validate(), ErrMalformedKey)
	assert.ErrorIs(t, RuleKey{Repository: "repo", Rule: decomposed}.Validate(), ErrMalformedKey)
	assert.ErrorIs(t, ActiveRuleKey{Profile: ProfileKey(decomposed), Rule: NewRuleKey("javascript", "S001")}.Validate(), ErrMalformedKey)

	// The constructors normalize, so derived keys always validate.
	assert.NoError(t, NewActiveRuleKey(ProfileKey(decomposed), NewRuleKey("repo", decomposed)).Validate())
}

func TestProfileKey_Validate(t *testing.T) {
	assert.NoError(t, ProfileKey("myprofile").Validate())
	assert.ErrorIs(t, ProfileKey("").Validate(), ErrMalformedKey)
	assert.ErrorIs(t, ProfileKey("my:profile").Validate(), ErrMalformedKey)
}

func TestActiveRuleKey_TextMarshaling(t *testing.T) {
	k := MustParseActiveRuleKey("myprofile:javascript:S001")
	text, err := k.MarshalText()
	require.NoError(t, err)

	var decoded ActiveRuleKey
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, k, decoded)

	assert.Error(t, decoded.UnmarshalText([]byte("broken")))
}
