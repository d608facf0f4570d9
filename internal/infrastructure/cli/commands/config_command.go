package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/doeshing/oncomn/internal/app"
	"github.com/doeshing/oncomn/internal/infrastructure/cli/helpers"
)

const envKeyEditor = "EDITOR"

// NewConfigCommand creates the config command with all subcommands
func NewConfigCommand(container *app.Container) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect Oncomn configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfiguration(cmd.Context(), cmd.OutOrStdout(), container)
		},
	}

	configCmd.AddCommand(
		newConfigPathCommand(container),
		newConfigShowCommand(container),
		newConfigGetCommand(container),
		newConfigSetCommand(container),
		newConfigEditCommand(container),
		newConfigValidateCommand(container),
		newConfigResetCommand(container),
		newConfigDiffCommand(container),
	)

	return configCmd
}

// newConfigPathCommand creates the 'config path' subcommand
func newConfigPathCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file location",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := helpers.GetConfigLoader(container)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), loader.Path())
			return nil
		},
	}
}

// newConfigShowCommand creates the 'config show' subcommand
func newConfigShowCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show full configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfiguration(cmd.Context(), cmd.OutOrStdout(), container)
		},
	}
}

// newConfigGetCommand creates the 'config get' subcommand
func newConfigGetCommand(container *app.Container) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Get a specific configuration value",
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				return errors.New(ErrKeyRequired)
			}
			return getConfigurationValue(cmd.Context(), cmd.OutOrStdout(), container, key)
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Key path (e.g., preferences.remote_model)")
	return cmd
}

// newConfigSetCommand creates the 'config set' subcommand
func newConfigSetCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value (value accepts YAML syntax)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := strings.Join(args[1:], " ")
			return setConfigurationValue(cmd.Context(), container, key, value)
		},
	}
}

// newConfigEditCommand creates the 'config edit' subcommand
func newConfigEditCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "edit",
		Short: "Edit configuration in $EDITOR",
		RunE: func(cmd *cobra.Command, args []string) error {
			return editConfigurationInEditor(container)
		},
	}
}

// newConfigValidateCommand creates the 'config validate' subcommand
func newConfigValidateCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := container.ConfigProvider.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("configuration validation failed: %w", err)
			}
			if err := cfg.ValidateConsistency(); err != nil {
				return fmt.Errorf("configuration validation failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), MsgConfigurationValid)
			return nil
		},
	}
}

// newConfigResetCommand creates the 'config reset' subcommand
func newConfigResetCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset configuration to defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			return resetConfigurationToDefaults(cmd.Context(), cmd.OutOrStdout(), container)
		},
	}
}

// newConfigDiffCommand creates the 'config diff' subcommand
func newConfigDiffCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "diff",
		Short: "Show diff versus default configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfigurationDiff(cmd.Context(), cmd.OutOrStdout(), container)
		},
	}
}

// showConfiguration displays the full configuration in YAML format
func showConfiguration(ctx context.Context, out io.Writer, container *app.Container) error {
	cfg, err := container.ConfigProvider.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	fmt.Fprint(out, string(data))
	return nil
}

// getConfigurationValue retrieves a specific configuration value by key path
func getConfigurationValue(ctx context.Context, out io.Writer, container *app.Container, keyPath string) error {
	cfg, err := container.ConfigProvider.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	cfgMap, err := helpers.ConfigToMap(cfg)
	if err != nil {
		return err
	}

	value, found := helpers.TraverseNestedMap(cfgMap, strings.Split(keyPath, "."))
	if !found {
		return fmt.Errorf("key %s not found in configuration", keyPath)
	}

	data, err := yaml.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	fmt.Fprint(out, string(data))
	return nil
}

// setConfigurationValue updates a configuration value by key path
func setConfigurationValue(ctx context.Context, container *app.Container, keyPath string, value string) error {
	cfg, err := container.ConfigProvider.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	cfgMap, err := helpers.ConfigToMap(cfg)
	if err != nil {
		return err
	}

	parsedValue, err := helpers.ParseYAMLValue(value)
	if err != nil {
		return fmt.Errorf("failed to parse value: %w", err)
	}

	if !helpers.SetNestedMapValue(cfgMap, strings.Split(keyPath, "."), parsedValue) {
		return fmt.Errorf("unable to set key %s", keyPath)
	}

	updated, err := helpers.MapToConfig(cfgMap)
	if err != nil {
		return err
	}

	return helpers.SaveConfigWithValidation(container, updated)
}

// editConfigurationInEditor opens the configuration file in the user's editor
func editConfigurationInEditor(container *app.Container) error {
	loader, err := helpers.GetConfigLoader(container)
	if err != nil {
		return err
	}

	editorCommand := getEditorCommand()
	cmd := exec.Command(editorCommand, loader.Path())
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to run editor %s: %w", editorCommand, err)
	}

	return nil
}

// resetConfigurationToDefaults resets the configuration to default values
func resetConfigurationToDefaults(ctx context.Context, out io.Writer, container *app.Container) error {
	loader, err := helpers.GetConfigLoader(container)
	if err != nil {
		return err
	}

	defaultConfig, err := loader.Reset(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset configuration: %w", err)
	}

	fmt.Fprintf(out, "Configuration reset at %s\n", loader.Path())

	data, _ := yaml.Marshal(defaultConfig)
	fmt.Fprint(out, string(data))

	return nil
}

// showConfigurationDiff shows the difference between current and default configuration
func showConfigurationDiff(ctx context.Context, out io.Writer, container *app.Container) error {
	loader, err := helpers.GetConfigLoader(container)
	if err != nil {
		return err
	}

	currentConfig, err := container.ConfigProvider.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load current configuration: %w", err)
	}

	defaultConfig, err := loader.Defaults()
	if err != nil {
		return err
	}

	diff := cmp.Diff(defaultConfig, currentConfig)
	if diff == "" {
		fmt.Fprintln(out, MsgNoDifferencesFromDefault)
		return nil
	}

	fmt.Fprintln(out, diff)
	return nil
}

// getEditorCommand retrieves the editor command from environment or returns default
func getEditorCommand() string {
	if editor := os.Getenv(envKeyEditor); editor != "" {
		return editor
	}
	return DefaultEditorCommand
}
