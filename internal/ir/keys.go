package ir

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// KeySeparator joins the parts of rule and composite keys.
const KeySeparator = ":"

// RuleKey identifies a rule by repository and rule key, e.g. "javascript:S001".
type RuleKey struct {
	Repository string
	Rule       string
}

// NewRuleKey builds a RuleKey from its parts. Parts are NFC normalized.
// It does not validate; call Validate before persisting or indexing.
func NewRuleKey(repository, rule string) RuleKey {
	return RuleKey{
		Repository: norm.NFC.String(repository),
		Rule:       norm.NFC.String(rule),
	}
}

// ParseRuleKey parses "<repository>:<rule>". The rule part may itself
// contain separators; the repository part may not.
func ParseRuleKey(s string) (RuleKey, error) {
	repo, rule, ok := strings.Cut(s, KeySeparator)
	if !ok {
		return RuleKey{}, fmt.Errorf("%w: rule key %q has no repository", ErrMalformedKey, s)
	}
	k := NewRuleKey(repo, rule)
	if err := k.Validate(); err != nil {
		return RuleKey{}, err
	}
	return k, nil
}

// MustParseRuleKey is like ParseRuleKey but panics on error.
// Use only in tests or with constant input.
func MustParseRuleKey(s string) RuleKey {
	k, err := ParseRuleKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

// Validate checks that both parts are present and well formed.
func (k RuleKey) Validate() error {
	if k.Repository == "" {
		return fmt.Errorf("%w: empty repository in rule key %q", ErrMalformedKey, k.String())
	}
	if k.Rule == "" {
		return fmt.Errorf("%w: empty rule in rule key %q", ErrMalformedKey, k.String())
	}
	if strings.Contains(k.Repository, KeySeparator) {
		return fmt.Errorf("%w: repository %q contains %q", ErrMalformedKey, k.Repository, KeySeparator)
	}
	if err := checkKeyChars(k.Repository); err != nil {
		return err
	}
	return checkKeyChars(k.Rule)
}

// IsZero reports whether the key is unset.
func (k RuleKey) IsZero() bool {
	return k.Repository == "" && k.Rule == ""
}

func (k RuleKey) String() string {
	return k.Repository + KeySeparator + k.Rule
}

// MarshalText implements encoding.TextMarshaler.
func (k RuleKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *RuleKey) UnmarshalText(data []byte) error {
	parsed, err := ParseRuleKey(string(data))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ProfileKey identifies a quality profile.
type ProfileKey string

// Validate checks that the profile key is non-empty and contains no separator.
func (p ProfileKey) Validate() error {
	if p == "" {
		return fmt.Errorf("%w: empty profile key", ErrMalformedKey)
	}
	if strings.Contains(string(p), KeySeparator) {
		return fmt.Errorf("%w: profile key %q contains %q", ErrMalformedKey, string(p), KeySeparator)
	}
	return checkKeyChars(string(p))
}

func (p ProfileKey) String() string {
	return string(p)
}

// ActiveRuleKey is the composite identifier of one activation:
// "<profile>:<repository>:<rule>".
type ActiveRuleKey struct {
	Profile ProfileKey
	Rule    RuleKey
}

// NewActiveRuleKey derives the composite key for a rule activated in a profile.
func NewActiveRuleKey(profile ProfileKey, rule RuleKey) ActiveRuleKey {
	return ActiveRuleKey{
		Profile: ProfileKey(norm.NFC.String(string(profile))),
		Rule:    NewRuleKey(rule.Repository, rule.Rule),
	}
}

// ParseActiveRuleKey parses "<profile>:<repository>:<rule>".
func ParseActiveRuleKey(s string) (ActiveRuleKey, error) {
	profile, rest, ok := strings.Cut(s, KeySeparator)
	if !ok {
		return ActiveRuleKey{}, fmt.Errorf("%w: active rule key %q has no rule part", ErrMalformedKey, s)
	}
	rule, err := ParseRuleKey(rest)
	if err != nil {
		return ActiveRuleKey{}, fmt.Errorf("active rule key %q: %w", s, err)
	}
	k := NewActiveRuleKey(ProfileKey(profile), rule)
	if err := k.Validate(); err != nil {
		return ActiveRuleKey{}, err
	}
	return k, nil
}

// MustParseActiveRuleKey is like ParseActiveRuleKey but panics on error.
func MustParseActiveRuleKey(s string) ActiveRuleKey {
	k, err := ParseActiveRuleKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

// Validate checks both the profile and rule parts.
func (k ActiveRuleKey) Validate() error {
	if err := k.Profile.Validate(); err != nil {
		return err
	}
	return k.Rule.Validate()
}

// IsZero reports whether the key is unset.
func (k ActiveRuleKey) IsZero() bool {
	return k.Profile == "" && k.Rule.IsZero()
}

func (k ActiveRuleKey) String() string {
	return string(k.Profile) + KeySeparator + k.Rule.String()
}

// MarshalText implements encoding.TextMarshaler.
func (k ActiveRuleKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ActiveRuleKey) UnmarshalText(data []byte) error {
	parsed, err := ParseActiveRuleKey(string(data))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// checkKeyChars rejects control characters and text that is not in NFC.
// The index uses NUL as a separator in its storage keys, and parsed keys
// are always NFC, so a key in any other form could not be found again.
func checkKeyChars(s string) error {
	for _, r := range s {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains control character %U", ErrMalformedKey, s, r)
		}
	}
	if !norm.NFC.IsNormalString(s) {
		return fmt.Errorf("%w: %q is not NFC normalized", ErrMalformedKey, s)
	}
	return nil
}
