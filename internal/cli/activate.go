package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/activerules/internal/engine"
	"github.com/roach88/activerules/internal/ir"
)

// ActivateOptions holds flags for the activate command.
type ActivateOptions struct {
	*RootOptions
	Severity    string
	Inheritance string
	Parent      string
	Params      []string // name=value
	Language    string
	Wait        bool
}

// NewActivateCommand creates the activate command.
func NewActivateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ActivateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "activate <profile> <repository:rule>",
		Short: "Activate a rule in a profile, or update an activation",
		Long: `Activate a rule in a quality profile, or update an existing activation.

The rule and profile are created when missing; creating a profile requires
--language. Parameters given with --param replace the activation's
parameters. With --wait the index is refreshed before the command returns
and the indexed document is printed.

Examples:
  arindex activate sonar-way javascript:S1067 --severity MAJOR --param max=3 --language js
  arindex activate child javascript:S1067 --severity MAJOR --inheritance INHERIT --parent sonar-way:javascript:S1067`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runActivate(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Severity, "severity", "", "severity: INFO, MINOR, MAJOR, CRITICAL or BLOCKER (required)")
	cmd.Flags().StringVar(&opts.Inheritance, "inheritance", "", "inheritance: INHERIT or OVERRIDES (requires --parent)")
	cmd.Flags().StringVar(&opts.Parent, "parent", "", "parent activation key profile:repository:rule")
	cmd.Flags().StringArrayVar(&opts.Params, "param", nil, "parameter name=value (repeatable)")
	cmd.Flags().StringVar(&opts.Language, "language", "", "language of the profile if it must be created")
	cmd.Flags().BoolVar(&opts.Wait, "wait", false, "refresh the index and print the document")
	_ = cmd.MarkFlagRequired("severity")

	return cmd
}

// buildRequest parses the command arguments into an engine request.
func (o *ActivateOptions) buildRequest(profile, rule string) (engine.ActivateRequest, error) {
	ruleKey, err := ir.ParseRuleKey(rule)
	if err != nil {
		return engine.ActivateRequest{}, err
	}
	severity, err := ir.ParseSeverity(o.Severity)
	if err != nil {
		return engine.ActivateRequest{}, err
	}
	inheritance, err := ir.ParseInheritance(o.Inheritance)
	if err != nil {
		return engine.ActivateRequest{}, err
	}

	req := engine.ActivateRequest{
		Profile:     ir.ProfileKey(profile),
		Rule:        ruleKey,
		Severity:    severity,
		Inheritance: inheritance,
		Language:    o.Language,
	}
	if o.Parent != "" {
		parent, err := ir.ParseActiveRuleKey(o.Parent)
		if err != nil {
			return engine.ActivateRequest{}, err
		}
		req.Parent = &parent
	}
	if len(o.Params) > 0 {
		req.Params = make(map[string]string, len(o.Params))
		for _, p := range o.Params {
			name, value, ok := strings.Cut(p, "=")
			if !ok || name == "" {
				return engine.ActivateRequest{}, fmt.Errorf("%w: param %q is not name=value", engine.ErrInvalidRequest, p)
			}
			req.Params[name] = value
		}
	}
	return req, nil
}

func runActivate(opts *ActivateOptions, profile, rule string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	req, err := opts.buildRequest(profile, rule)
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid activation", err)
	}

	e, err := opts.openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	if err := e.Activate(ctx, req); err != nil {
		return formatter.Fail(ExitFailure, "activation failed", err)
	}
	formatter.VerboseLog("committed %s", req.Key())

	if !opts.Wait {
		return formatter.Success(activationResult{Key: req.Key()})
	}

	if err := e.Refresh(ctx); err != nil {
		return formatter.Fail(ExitFailure, "refresh failed", err)
	}
	doc, found, err := e.Index().GetByKey(ctx, req.Key())
	if err != nil {
		return formatter.Fail(ExitFailure, "read back failed", err)
	}
	if !found {
		return formatter.Fail(ExitFailure, "read back failed", fmt.Errorf("%s is not visible after refresh", req.Key()))
	}
	return formatter.Success(documentView(doc))
}

// activationResult is printed when the command does not wait for refresh.
type activationResult struct {
	Key ir.ActiveRuleKey `json:"key"`
}

func (r activationResult) String() string {
	return fmt.Sprintf("Activated %s", r.Key)
}

// NewDeactivateCommand creates the deactivate command.
func NewDeactivateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deactivate <profile:repository:rule>",
		Short: "Remove an activation",
		Long: `Remove an activation from its profile and from the index.

Activations that inherit from it keep their inheritance but lose the
parent link.

Example:
  arindex deactivate sonar-way:javascript:S1067`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeactivate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runDeactivate(opts *RootOptions, rawKey string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	key, err := ir.ParseActiveRuleKey(rawKey)
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid key", err)
	}

	e, err := opts.openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.Deactivate(cmd.Context(), key); err != nil {
		return formatter.Fail(ExitFailure, "deactivation failed", err)
	}
	return formatter.Success(deactivationResult{Key: key})
}

type deactivationResult struct {
	Key ir.ActiveRuleKey `json:"key"`
}

func (r deactivationResult) String() string {
	return fmt.Sprintf("Deactivated %s", r.Key)
}
