package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/doeshing/oncomn/internal/app"
	"github.com/doeshing/oncomn/internal/domain"
	"github.com/doeshing/oncomn/internal/infrastructure/cli/helpers"
	"github.com/doeshing/oncomn/internal/ports"
)

const modelTestMaxTokens = 256

// NewModelsCommand creates the models command with all subcommands
func NewModelsCommand(container *app.Container) *cobra.Command {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Manage chat-completion model configurations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listModels(cmd.Context(), cmd.OutOrStdout(), container)
		},
	}

	modelsCmd.AddCommand(
		newModelsListCommand(container),
		newModelsTestCommand(container),
		newModelsUseCommand(container),
		newModelsAddCommand(container),
		newModelsRemoveCommand(container),
	)

	return modelsCmd
}

// newModelsListCommand creates the 'models list' subcommand
func newModelsListCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured models",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listModels(cmd.Context(), cmd.OutOrStdout(), container)
		},
	}
}

// newModelsTestCommand creates the 'models test' subcommand
func newModelsTestCommand(container *app.Container) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "test <name>",
		Short: "Send a short prompt to a model and report the answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return testModel(cmd.Context(), cmd.OutOrStdout(), container, args[0], timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", domain.DefaultModelTestTimeout, "Give up after this long")
	return cmd
}

// newModelsUseCommand creates the 'models use' subcommand
func newModelsUseCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "use <name>",
		Short: "Select the local or remote model used by default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return useModel(cmd.Context(), cmd.OutOrStdout(), container, args[0])
		},
	}
}

// newModelsAddCommand creates the 'models add' subcommand
func newModelsAddCommand(container *app.Container) *cobra.Command {
	var opts modelAddOptions

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new model definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			return addModel(cmd.Context(), container, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "Model name (identifier)")
	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "", "OpenAI-compatible base URL (e.g. http://localhost:11434/v1)")
	cmd.Flags().StringVar(&opts.ModelID, "model-id", "", "Model identifier at the provider")
	cmd.Flags().StringVar(&opts.AuthEnv, "auth-env", "", "Environment variable containing the API key")
	cmd.Flags().BoolVar(&opts.Local, "local", false, "The model runs on a local inference server")
	cmd.Flags().BoolVar(&opts.ThinkTags, "think-tags", false, "The model inlines its reasoning in <think> tags")
	cmd.Flags().BoolVar(&opts.IncludeReasoning, "include-reasoning", false, "Ask the provider to stream reasoning tokens")
	cmd.Flags().IntVar(&opts.MaxTokens, "max-tokens", 0, "Completion token budget (0 uses the generation default)")

	return cmd
}

// newModelsRemoveCommand creates the 'models remove' subcommand
func newModelsRemoveCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove model definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return removeModel(cmd.Context(), container, args[0])
		},
	}
}

// modelAddOptions holds options for adding a new model
type modelAddOptions struct {
	Name             string
	BaseURL          string
	ModelID          string
	AuthEnv          string
	Local            bool
	ThinkTags        bool
	IncludeReasoning bool
	MaxTokens        int
}

// listModels lists all configured models
func listModels(ctx context.Context, out io.Writer, container *app.Container) error {
	cfg, err := container.ConfigProvider.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	fmt.Fprintf(out, "NAME\tMODEL ID\tBASE URL\tWHERE\tSELECTED\n")

	for _, model := range cfg.Models {
		where := "remote"
		selected := cfg.Preferences.RemoteModel == model.Name
		if model.Local {
			where = "local"
			selected = cfg.Preferences.LocalModel == model.Name
		}
		marker := ""
		if selected {
			marker = "*"
		}
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\n",
			model.Name,
			model.ModelID,
			model.BaseURL,
			where,
			marker)
	}

	if cfg.Preferences.UseLocalModel {
		fmt.Fprintln(out, "Local model is used by default.")
	}

	return nil
}

// testModel sends a short non-streaming prompt to a model
func testModel(ctx context.Context, out io.Writer, container *app.Container, modelName string, timeout time.Duration) error {
	cfg, err := container.ConfigProvider.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	model, exists := cfg.FindModelByName(modelName)
	if !exists {
		return fmt.Errorf("model %s not found", modelName)
	}

	provider, err := container.ProviderFactory.ForModel(model)
	if err != nil {
		return fmt.Errorf("failed to create provider for model %s: %w", modelName, err)
	}

	if timeout <= 0 {
		timeout = domain.DefaultModelTestTimeout
	}
	testCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	answer, err := provider.Complete(testCtx, ports.ProviderRequest{
		Prompt:      ModelTestPrompt,
		Temperature: cfg.TemperatureFor(model),
		MaxTokens:   modelTestMaxTokens,
	})
	if err != nil {
		return fmt.Errorf("model %s test failed: %w", modelName, err)
	}

	fmt.Fprintf(out, "Model %s responded in %s.\n", modelName, time.Since(started).Round(time.Millisecond))
	if answer = strings.TrimSpace(answer); answer != "" {
		fmt.Fprintln(out, helpers.Muted(answer))
	}
	return nil
}

// useModel selects a model in the preferences
func useModel(ctx context.Context, out io.Writer, container *app.Container, modelName string) error {
	cfg, err := container.ConfigProvider.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.UseModel(modelName); err != nil {
		return err
	}

	if err := helpers.SaveConfigWithValidation(container, cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "Using %s.\n", modelName)
	return nil
}

// addModel adds a new model definition
func addModel(ctx context.Context, container *app.Container, opts modelAddOptions) error {
	if err := validateModelAddOptions(opts); err != nil {
		return err
	}

	cfg, err := container.ConfigProvider.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	model := domain.ModelDefinition{
		Name:       opts.Name,
		BaseURL:    opts.BaseURL,
		ModelID:    opts.ModelID,
		Local:      opts.Local,
		AuthEnvVar: opts.AuthEnv,
		MaxTokens:  opts.MaxTokens,
		APIFormat: domain.APIFormat{
			ThinkTags:        opts.ThinkTags,
			IncludeReasoning: opts.IncludeReasoning,
		},
	}

	if err := cfg.AddModel(model); err != nil {
		return err
	}

	return helpers.SaveConfigWithValidation(container, cfg)
}

// removeModel removes a model definition
func removeModel(ctx context.Context, container *app.Container, modelName string) error {
	cfg, err := container.ConfigProvider.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.RemoveModel(modelName); err != nil {
		return err
	}

	return helpers.SaveConfigWithValidation(container, cfg)
}

// validateModelAddOptions validates the options for adding a model
func validateModelAddOptions(opts modelAddOptions) error {
	if opts.Name == "" || opts.BaseURL == "" || opts.ModelID == "" {
		return errors.New(ErrModelFieldsRequired)
	}

	if opts.MaxTokens < 0 {
		return fmt.Errorf("max-tokens must not be negative, got %d", opts.MaxTokens)
	}

	return nil
}
