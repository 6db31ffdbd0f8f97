package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/activerules/internal/index"
	"github.com/roach88/activerules/internal/ir"
	"github.com/roach88/activerules/internal/store"
)

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <profile:repository:rule>",
		Short: "Show the indexed document of one activation",
		Long: `Show the indexed document of one activation.

Only refreshed writes are visible. Exits with code 1 when the key has no
visible document.

Example:
  arindex get sonar-way:javascript:S1067 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runGet(opts *RootOptions, rawKey string, cmd *cobra.Command) error {
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

	doc, found, err := e.Index().GetByKey(cmd.Context(), key)
	if err != nil {
		return formatter.Fail(ExitFailure, "lookup failed", err)
	}
	if !found {
		return formatter.Fail(ExitFailure, "lookup failed", fmt.Errorf("%s: %w", key, store.ErrNotFound))
	}
	return formatter.Success(documentView(doc))
}

// FindOptions holds flags for the find command.
type FindOptions struct {
	*RootOptions
	Rule        string
	Profile     string
	Severities  []string
	MinSeverity string
	Inheritance string
	Parent      string
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FindOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "find",
		Short: "Query indexed activations",
		Long: `Query indexed activations. Filters combine with AND; no filter lists
every visible document. Results are ordered by key.

Examples:
  arindex find --rule javascript:S1067
  arindex find --profile sonar-way --min-severity MAJOR
  arindex find --parent sonar-way:javascript:S1067 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFind(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Rule, "rule", "", "rule key repository:rule")
	cmd.Flags().StringVar(&opts.Profile, "profile", "", "profile key")
	cmd.Flags().StringSliceVar(&opts.Severities, "severity", nil, "any of these severities (repeatable)")
	cmd.Flags().StringVar(&opts.MinSeverity, "min-severity", "", "at least this severity")
	cmd.Flags().StringVar(&opts.Inheritance, "inheritance", "", "NONE, INHERIT or OVERRIDES")
	cmd.Flags().StringVar(&opts.Parent, "parent", "", "parent activation key")

	return cmd
}

// buildFilter parses the filter flags.
func (o *FindOptions) buildFilter() (index.Filter, error) {
	var f index.Filter
	if o.Rule != "" {
		rule, err := ir.ParseRuleKey(o.Rule)
		if err != nil {
			return index.Filter{}, err
		}
		f.Rule = &rule
	}
	if o.Profile != "" {
		profile := ir.ProfileKey(o.Profile)
		if err := profile.Validate(); err != nil {
			return index.Filter{}, err
		}
		f.Profile = &profile
	}
	for _, s := range o.Severities {
		sev, err := ir.ParseSeverity(s)
		if err != nil {
			return index.Filter{}, err
		}
		f.Severities = append(f.Severities, sev)
	}
	if o.MinSeverity != "" {
		sev, err := ir.ParseSeverity(o.MinSeverity)
		if err != nil {
			return index.Filter{}, err
		}
		f.MinSeverity = sev
	}
	if o.Inheritance != "" {
		inh, err := ir.ParseInheritance(o.Inheritance)
		if err != nil {
			return index.Filter{}, err
		}
		f.Inheritance = &inh
	}
	if o.Parent != "" {
		parent, err := ir.ParseActiveRuleKey(o.Parent)
		if err != nil {
			return index.Filter{}, err
		}
		f.Parent = &parent
	}
	return f, nil
}

func runFind(opts *FindOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	f, err := opts.buildFilter()
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid filter", err)
	}

	e, err := opts.openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	docs, err := e.Index().Find(cmd.Context(), f)
	if err != nil {
		return formatter.Fail(ExitFailure, "query failed", err)
	}
	formatter.VerboseLog("%d documents matched", len(docs))
	return formatter.Success(newDocumentList(docs))
}
