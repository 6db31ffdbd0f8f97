package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/activerules/internal/ir"
)

// CreateProfileOptions holds flags for the create-profile command.
type CreateProfileOptions struct {
	*RootOptions
	Language string
}

// NewCreateProfileCommand creates the create-profile command.
func NewCreateProfileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateProfileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create-profile <name>",
		Short: "Create a quality profile with a generated key",
		Long: `Create a quality profile and print its generated key.

Keys are time-ordered UUIDs. Activations name the profile by this key.

Example:
  arindex create-profile "Sonar way" --language js`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreateProfile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Language, "language", "", "language of the profile (required)")
	_ = cmd.MarkFlagRequired("language")

	return cmd
}

func runCreateProfile(opts *CreateProfileOptions, name string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	e, err := opts.openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	key, err := e.CreateProfile(cmd.Context(), name, opts.Language)
	if err != nil {
		return formatter.Fail(ExitFailure, "profile creation failed", err)
	}
	return formatter.Success(profileResult{Key: key, Name: name, Language: opts.Language})
}

type profileResult struct {
	Key      ir.ProfileKey `json:"key"`
	Name     string        `json:"name"`
	Language string        `json:"language"`
}

func (r profileResult) String() string {
	return fmt.Sprintf("Created profile %s (%s, %s)", r.Key, r.Name, r.Language)
}
