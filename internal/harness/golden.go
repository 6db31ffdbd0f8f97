package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/activerules/internal/ir"
)

// Snapshot captures what a scenario run produced.
// All fields use canonical JSON serialization for deterministic comparison.
type Snapshot struct {
	ScenarioName string
	Pass         bool
	Trace        []StepRecord
	Documents    []ir.ActiveRule
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON
// serialization. ir.MarshalCanonical only handles maps, slices and scalars.
func (s *Snapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, rec := range s.Trace {
		m := map[string]any{
			"index":   rec.Index,
			"op":      rec.Op,
			"outcome": rec.Outcome,
		}
		if rec.Target != "" {
			m["target"] = rec.Target
		}
		trace[i] = m
	}

	docs := make([]any, len(s.Documents))
	for i, d := range s.Documents {
		docs[i] = d.CanonicalMap()
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"pass":          s.Pass,
		"trace":         trace,
		"documents":     docs,
	}
}

// MarshalSnapshot serializes a run of scenario as canonical JSON.
func MarshalSnapshot(scenario *Scenario, result *Result) ([]byte, error) {
	snap := Snapshot{
		ScenarioName: scenario.Name,
		Pass:         result.Pass,
		Trace:        result.Trace,
		Documents:    result.Documents,
	}
	return ir.MarshalCanonical(snap.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass. Test failure (via
// goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, tester *Tester, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := tester.Run(t.Context(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenario, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return nil
}
