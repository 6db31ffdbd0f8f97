package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/activerules/internal/config"
	"github.com/roach88/activerules/internal/engine"
	"github.com/roach88/activerules/internal/index"
	"github.com/roach88/activerules/internal/ir"
	"github.com/roach88/activerules/internal/testutil"
)

// Tester runs scenarios against an injected engine. Each Run starts from
// an empty store and index.
type Tester struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewTester returns a Tester driving e. The caller keeps ownership of e.
func NewTester(e *engine.Engine, logger *slog.Logger) *Tester {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Tester{engine: e, logger: logger}
}

// Engine returns the engine under test.
func (t *Tester) Engine() *engine.Engine {
	return t.engine
}

// Reset empties the engine's store and index.
func (t *Tester) Reset(ctx context.Context) error {
	return t.engine.Reset(ctx)
}

// Run executes a scenario from a clean state and returns the result.
// A non-nil error means the harness itself failed; scenario failures are
// reported through Result.Pass and Result.Errors.
func (t *Tester) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	if err := t.Reset(ctx); err != nil {
		return nil, fmt.Errorf("failed to reset engine: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		rec, err := t.executeStep(ctx, scenario, i, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		result.Trace = append(result.Trace, rec.StepRecord)
		if rec.failure != "" {
			result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, rec.Op, rec.failure))
		}
	}

	for i, a := range scenario.Assertions {
		if err := evaluate(ctx, t.engine, a); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}

	docs, err := t.engine.Index().Find(ctx, index.Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot index: %w", err)
	}
	result.Documents = docs

	t.logger.Debug("scenario finished",
		"name", scenario.Name,
		"pass", result.Pass,
		"steps", len(result.Trace),
		"documents", len(docs),
	)
	return result, nil
}

// Run executes a scenario on a fresh private engine: in-memory store and
// index, no background refresh, sequential profile keys.
func Run(scenario *Scenario) (*Result, error) {
	e, err := NewEngine(nil)
	if err != nil {
		return nil, err
	}
	defer e.Close()
	return NewTester(e, nil).Run(context.Background(), scenario)
}

// NewEngine opens an in-memory engine suited to scenario runs.
func NewEngine(logger *slog.Logger) (*engine.Engine, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	cfg := config.Default()
	cfg.Database = ":memory:"
	cfg.InMemoryIndex = true
	cfg.RefreshInterval = 0
	cfg.GCInterval = 0

	e, err := engine.New(cfg,
		engine.WithLogger(logger),
		engine.WithKeyGenerator(testutil.NewSequentialKeyGenerator("")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return e, nil
}

type stepOutcome struct {
	StepRecord
	failure string
}

// executeStep runs one step. Step errors are compared with the step's
// expect_error; only harness faults are returned as errors.
func (t *Tester) executeStep(ctx context.Context, scenario *Scenario, i int, step Step) (stepOutcome, error) {
	out := stepOutcome{StepRecord: StepRecord{Index: i}}

	var err error
	switch {
	case step.Activate != nil:
		out.Op = "activate"
		out.Target = step.Activate.Profile + ir.KeySeparator + step.Activate.Rule
		var req engine.ActivateRequest
		req, err = step.Activate.request(scenario.Language)
		if err == nil {
			err = t.engine.Activate(ctx, req)
		}
	case step.Deactivate != "":
		out.Op = "deactivate"
		out.Target = step.Deactivate
		var key ir.ActiveRuleKey
		key, err = ir.ParseActiveRuleKey(step.Deactivate)
		if err == nil {
			err = t.engine.Deactivate(ctx, key)
		}
	case step.DeleteProfile != "":
		out.Op = "delete_profile"
		out.Target = step.DeleteProfile
		err = t.engine.DeleteProfile(ctx, ir.ProfileKey(step.DeleteProfile))
	case step.Refresh:
		out.Op = "refresh"
		err = t.engine.Refresh(ctx)
	case step.Reindex:
		out.Op = "reindex"
		_, err = t.engine.Sync().Reindex(ctx)
	case step.Reconcile:
		out.Op = "reconcile"
		_, err = t.engine.Sync().Reconcile(ctx)
	case step.Assert != nil:
		out.Op = "assert:" + step.Assert.Type
		out.Target = step.Assert.target()
		if aerr := evaluate(ctx, t.engine, *step.Assert); aerr != nil {
			out.Outcome = "failed"
			out.failure = aerr.Error()
			return out, nil
		}
		out.Outcome = KindOK
		return out, nil
	default:
		return out, fmt.Errorf("step has no action")
	}

	out.Outcome = ErrorKind(err)
	want := step.ExpectError
	if want == "" {
		want = KindOK
	}
	if out.Outcome != want {
		out.failure = fmt.Sprintf("expected %s, got %s", want, out.Outcome)
		if err != nil {
			out.failure += ": " + err.Error()
		}
	}
	t.logger.Debug("step executed", "index", i, "op", out.Op, "target", out.Target, "outcome", out.Outcome)
	return out, nil
}

// request converts the step into an engine request. language is used for
// profiles that do not exist yet.
func (s *ActivateStep) request(language string) (engine.ActivateRequest, error) {
	rule, err := ir.ParseRuleKey(s.Rule)
	if err != nil {
		return engine.ActivateRequest{}, err
	}
	severity, err := ir.ParseSeverity(s.Severity)
	if err != nil {
		return engine.ActivateRequest{}, err
	}
	inheritance, err := ir.ParseInheritance(s.Inheritance)
	if err != nil {
		return engine.ActivateRequest{}, err
	}

	req := engine.ActivateRequest{
		Profile:     ir.ProfileKey(s.Profile),
		Rule:        rule,
		Severity:    severity,
		Inheritance: inheritance,
		Params:      s.Params,
		Language:    language,
	}
	if s.Parent != "" {
		parent, err := ir.ParseActiveRuleKey(s.Parent)
		if err != nil {
			return engine.ActivateRequest{}, err
		}
		req.Parent = &parent
	}
	return req, nil
}
