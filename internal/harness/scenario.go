package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/activerules/internal/ir"
)

// Scenario is a scripted sequence of writes, refreshes and assertions.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Language is used for profiles created by activate steps.
	// Defaults to DefaultLanguage.
	Language string `yaml:"language,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions run after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// DefaultLanguage is the profile language when a scenario names none.
const DefaultLanguage = "js"

// Step is one scenario action. Exactly one action field is set.
type Step struct {
	Activate      *ActivateStep `yaml:"activate,omitempty"`
	Deactivate    string        `yaml:"deactivate,omitempty"`
	DeleteProfile string        `yaml:"delete_profile,omitempty"`
	Refresh       bool          `yaml:"refresh,omitempty"`
	Reindex       bool          `yaml:"reindex,omitempty"`
	Reconcile     bool          `yaml:"reconcile,omitempty"`
	Assert        *Assertion    `yaml:"assert,omitempty"`

	// ExpectError is the error kind the step must fail with, see ErrorKind.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// ActivateStep creates or updates one activation.
type ActivateStep struct {
	Profile     string            `yaml:"profile"`
	Rule        string            `yaml:"rule"`
	Severity    string            `yaml:"severity"`
	Inheritance string            `yaml:"inheritance,omitempty"`
	Parent      string            `yaml:"parent,omitempty"`
	Params      map[string]string `yaml:"params,omitempty"`
}

// Assertion checks what the index or store holds.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Key is the activation key (get, absent).
	Key string `yaml:"key,omitempty"`

	// Rule is the rule key (find_by_rule).
	Rule string `yaml:"rule,omitempty"`

	// Profile is the profile key (find_by_profile).
	Profile string `yaml:"profile,omitempty"`

	// Filter selects documents (find).
	Filter *FilterSpec `yaml:"filter,omitempty"`

	// Expect holds expected canonical field values (get).
	// Subset match; a null value requires the field to be absent.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of results (find*, count, store_count).
	Count *int `yaml:"count,omitempty"`

	// Keys are the exact expected result keys in order (find*).
	Keys []string `yaml:"keys,omitempty"`
}

// FilterSpec is the YAML form of index.Filter.
type FilterSpec struct {
	Rule        string   `yaml:"rule,omitempty"`
	Profile     string   `yaml:"profile,omitempty"`
	Severities  []string `yaml:"severities,omitempty"`
	MinSeverity string   `yaml:"min_severity,omitempty"`
	Inheritance string   `yaml:"inheritance,omitempty"`
	Parent      string   `yaml:"parent,omitempty"`
}

// Assertion type constants.
const (
	AssertGet           = "get"
	AssertAbsent        = "absent"
	AssertFindByRule    = "find_by_rule"
	AssertFindByProfile = "find_by_profile"
	AssertFind          = "find"
	AssertCount         = "count"
	AssertStoreCount    = "store_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if scenario.Language == "" {
		scenario.Language = DefaultLanguage
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and that every
// key and enum parses, so a scenario fails at load rather than mid-run.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	set := 0
	for _, on := range []bool{
		step.Activate != nil,
		step.Deactivate != "",
		step.DeleteProfile != "",
		step.Refresh,
		step.Reindex,
		step.Reconcile,
		step.Assert != nil,
	} {
		if on {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one action is required, got %d", set)
	}

	if step.ExpectError != "" && !knownErrorKind(step.ExpectError) {
		return fmt.Errorf("unknown expect_error %q", step.ExpectError)
	}

	switch {
	case step.Activate != nil:
		// Malformed input is allowed when the step expects the error.
		if step.ExpectError != "" {
			return nil
		}
		_, err := step.Activate.request("")
		return err
	case step.Deactivate != "":
		if step.ExpectError != "" {
			return nil
		}
		_, err := ir.ParseActiveRuleKey(step.Deactivate)
		return err
	case step.Assert != nil:
		return validateAssertion(*step.Assert)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertGet:
		if _, err := ir.ParseActiveRuleKey(a.Key); err != nil {
			return fmt.Errorf("get: %w", err)
		}
	case AssertAbsent:
		if _, err := ir.ParseActiveRuleKey(a.Key); err != nil {
			return fmt.Errorf("absent: %w", err)
		}
	case AssertFindByRule:
		if _, err := ir.ParseRuleKey(a.Rule); err != nil {
			return fmt.Errorf("find_by_rule: %w", err)
		}
		if err := requireCountOrKeys(a); err != nil {
			return err
		}
	case AssertFindByProfile:
		if a.Profile == "" {
			return fmt.Errorf("find_by_profile: profile is required")
		}
		if err := requireCountOrKeys(a); err != nil {
			return err
		}
	case AssertFind:
		if a.Filter == nil {
			return fmt.Errorf("find: filter is required")
		}
		if _, err := a.Filter.filter(); err != nil {
			return fmt.Errorf("find: %w", err)
		}
		if err := requireCountOrKeys(a); err != nil {
			return err
		}
	case AssertCount, AssertStoreCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("%s: a non-negative count is required", a.Type)
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func requireCountOrKeys(a Assertion) error {
	if a.Count == nil && a.Keys == nil {
		return fmt.Errorf("%s: count or keys is required", a.Type)
	}
	for _, k := range a.Keys {
		if _, err := ir.ParseActiveRuleKey(k); err != nil {
			return fmt.Errorf("%s: %w", a.Type, err)
		}
	}
	return nil
}
