package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/doeshing/oncomn/internal/app"
	"github.com/doeshing/oncomn/internal/infrastructure/cli/commands"
	"github.com/doeshing/oncomn/internal/ports"
)

// Options holds CLI-level configuration.
type Options struct {
	Verbose bool
	// ConfigPath overrides ONCOMN_CONFIG and ~/.oncomn/config.yaml.
	ConfigPath string
}

// NewRootCmd wires the cobra root command.
func NewRootCmd(ctx context.Context, opts Options) (*cobra.Command, error) {
	container, err := app.BuildContainer(ctx, app.Options{
		ConfigPath: opts.ConfigPath,
		Verbose:    opts.Verbose,
	})
	if err != nil {
		return nil, err
	}

	root := newRootCommand(container, NewPrompter(), NewClipboard())
	root.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return container.Close()
	}
	return root, nil
}

func newRootCommand(container *app.Container, prompter ports.ConfirmationPrompter, clipboard ports.Clipboard) *cobra.Command {
	var opts generateOptions

	root := &cobra.Command{
		Use:   "oncomn [prompt]",
		Short: "Oncomn - generate front-end components with an LLM",
		Long: "Oncomn streams a chat-completion model's answer, extracting the reasoning and the\n" +
			"generated HTML, CSS and JavaScript while the answer is still arriving.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runGenerate(cmd, container, clipboard, opts, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	bindGenerateFlags(root, &opts)

	root.AddCommand(newGenerateCommand(container, clipboard))
	root.AddCommand(commands.NewProjectCommand(container, prompter))
	root.AddCommand(commands.NewModelsCommand(container))
	root.AddCommand(commands.NewConfigCommand(container))
	root.AddCommand(commands.NewDoctorCommand(container))
	root.AddCommand(commands.NewServeCommand(container))
	return root
}
