package ir

import (
	"fmt"
	"strings"
)

// Severity is the ordered severity of an activation.
// The zero value is invalid; INFO < MINOR < MAJOR < CRITICAL < BLOCKER.
type Severity int

const (
	SeverityInfo Severity = iota + 1
	SeverityMinor
	SeverityMajor
	SeverityCritical
	SeverityBlocker
)

var severityNames = map[Severity]string{
	SeverityInfo:     "INFO",
	SeverityMinor:    "MINOR",
	SeverityMajor:    "MAJOR",
	SeverityCritical: "CRITICAL",
	SeverityBlocker:  "BLOCKER",
}

// Severities lists all severities in ascending order.
func Severities() []Severity {
	return []Severity{SeverityInfo, SeverityMinor, SeverityMajor, SeverityCritical, SeverityBlocker}
}

// ParseSeverity parses the canonical upper-case name of a severity.
// Any other string, including the empty string, is rejected.
func ParseSeverity(s string) (Severity, error) {
	for sev, name := range severityNames {
		if name == s {
			return sev, nil
		}
	}
	return 0, fmt.Errorf("%w: severity %q", ErrUnknownEnum, s)
}

// Valid reports whether s is one of the declared severities.
func (s Severity) Valid() bool {
	_, ok := severityNames[s]
	return ok
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: severity %d", ErrUnknownEnum, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(data []byte) error {
	parsed, err := ParseSeverity(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Inheritance describes how an activation relates to the parent profile.
type Inheritance int

const (
	// InheritanceNone marks an activation defined locally, with no parent link.
	InheritanceNone Inheritance = iota
	// InheritanceInherit marks an activation inherited unchanged from the parent profile.
	InheritanceInherit
	// InheritanceOverrides marks an inherited activation whose settings were changed locally.
	InheritanceOverrides
)

var inheritanceNames = map[Inheritance]string{
	InheritanceNone:      "NONE",
	InheritanceInherit:   "INHERIT",
	InheritanceOverrides: "OVERRIDES",
}

// ParseInheritance parses an inheritance name. The relational layer stores
// NULL for local activations, so the empty string parses as NONE.
func ParseInheritance(s string) (Inheritance, error) {
	if strings.TrimSpace(s) == "" {
		return InheritanceNone, nil
	}
	for inh, name := range inheritanceNames {
		if name == s {
			return inh, nil
		}
	}
	return 0, fmt.Errorf("%w: inheritance %q", ErrUnknownEnum, s)
}

// Valid reports whether i is one of the declared values.
func (i Inheritance) Valid() bool {
	_, ok := inheritanceNames[i]
	return ok
}

func (i Inheritance) String() string {
	if name, ok := inheritanceNames[i]; ok {
		return name
	}
	return fmt.Sprintf("Inheritance(%d)", int(i))
}

// MarshalText implements encoding.TextMarshaler.
func (i Inheritance) MarshalText() ([]byte, error) {
	if !i.Valid() {
		return nil, fmt.Errorf("%w: inheritance %d", ErrUnknownEnum, int(i))
	}
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *Inheritance) UnmarshalText(data []byte) error {
	parsed, err := ParseInheritance(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
