package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/doeshing/oncomn/internal/app"
	"github.com/doeshing/oncomn/internal/application/generate"
	"github.com/doeshing/oncomn/internal/domain"
	"github.com/doeshing/oncomn/internal/infrastructure/cli/helpers"
	"github.com/doeshing/oncomn/internal/infrastructure/project"
	"github.com/doeshing/oncomn/internal/ports"
)

const maxTitleRunes = 60

type generateOptions struct {
	local            bool
	model            string
	noStream         bool
	systemPromptFile string
	projectID        string
	outDir           string
	copy             bool
	plain            bool
	timeout          time.Duration
}

func newGenerateCommand(container *app.Container, clipboard ports.Clipboard) *cobra.Command {
	var opts generateOptions

	cmd := &cobra.Command{
		Use:     "generate [prompt]",
		Aliases: []string{"gen"},
		Short:   "Generate HTML, CSS and JavaScript from a description",
		Long: "Streams the model's reasoning and code as it arrives. Ctrl-C stops the generation\n" +
			"and keeps whatever was extracted so far. Use \"-\" to read the prompt from stdin.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, container, clipboard, opts, args)
		},
	}
	bindGenerateFlags(cmd, &opts)
	return cmd
}

func bindGenerateFlags(cmd *cobra.Command, opts *generateOptions) {
	flags := cmd.Flags()
	flags.BoolVarP(&opts.local, "local", "l", false, "Use the local model instead of the remote one")
	flags.StringVarP(&opts.model, "model", "m", "", "Override model name (default from config)")
	flags.BoolVar(&opts.noStream, "no-stream", false, "Wait for the complete answer instead of streaming")
	flags.StringVar(&opts.systemPromptFile, "system-prompt-file", "", "Read the system prompt template from a file")
	flags.StringVarP(&opts.projectID, "project", "p", "", "Save the prompt and result to this project")
	flags.StringVarP(&opts.outDir, "out", "o", "", "Export the result as static files into this directory")
	flags.BoolVarP(&opts.copy, "copy", "c", false, "Copy the generated HTML to the clipboard")
	flags.BoolVar(&opts.plain, "plain", false, "Print raw markdown without terminal styling")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Override the generation timeout (default from config)")
}

func runGenerate(cmd *cobra.Command, container *app.Container, clipboard ports.Clipboard, opts generateOptions, args []string) error {
	if container.GenerateService == nil {
		return errors.New("generate service unavailable")
	}

	prompt, err := readPrompt(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	req := domain.GenerationRequest{
		Prompt:        prompt,
		UseLocalModel: opts.local,
		ModelOverride: opts.model,
		ProjectID:     opts.projectID,
		ConsumerID:    generate.ConsumerCLI,
	}
	if opts.systemPromptFile != "" {
		data, err := os.ReadFile(opts.systemPromptFile)
		if err != nil {
			return fmt.Errorf("read system prompt: %w", err)
		}
		req.SystemPrompt = string(data)
	}
	if opts.noStream {
		stream := false
		req.Stream = &stream
	}

	// The first Ctrl-C cancels the generation; stop() restores the default
	// handler so a second one exits immediately.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}
	req.Context = ctx

	live := NewLiveRenderer(cmd.ErrOrStderr())
	live.Start()
	resp, err := container.GenerateService.Run(req, live.Update)
	live.Stop()
	stop()

	if resp.SessionID != "" {
		renderGeneration(cmd.OutOrStdout(), resp, opts.plain)
	}
	if err != nil {
		return err
	}

	if opts.outDir != "" {
		written, err := project.Export(resp.Result(), exportTitle(prompt), opts.outDir)
		if err != nil {
			return err
		}
		for _, path := range written {
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
		}
	}

	if opts.copy {
		copyHTML(cmd.ErrOrStderr(), clipboard, resp.Result().HTML)
	}
	return nil
}

// readPrompt joins the arguments, or reads stdin when the only argument is "-".
func readPrompt(in io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("read prompt from stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return strings.TrimSpace(strings.Join(args, " ")), nil
}

func renderGeneration(out io.Writer, resp domain.GenerationResponse, plain bool) {
	fmt.Fprintln(out, helpers.StatusLine(resp))

	result := resp.Result()
	if !result.HasCode() && strings.TrimSpace(result.Reasoning) == "" {
		return
	}
	md := helpers.ResultMarkdown(result, resp.Extraction.Missing)
	fmt.Fprint(out, helpers.NewMarkdownRenderer(plain).Render(md))
}

func copyHTML(out io.Writer, clipboard ports.Clipboard, html string) {
	switch {
	case strings.TrimSpace(html) == "":
		fmt.Fprintln(out, color.YellowString("nothing to copy: no HTML was generated"))
	case clipboard == nil || !clipboard.Enabled():
		fmt.Fprintln(out, color.YellowString("clipboard is not available on this system"))
	default:
		if err := clipboard.Copy(html); err != nil {
			fmt.Fprintln(out, color.YellowString("copy failed: %v", err))
			return
		}
		fmt.Fprintln(out, color.GreenString("HTML copied to clipboard"))
	}
}

func exportTitle(prompt string) string {
	runes := []rune(strings.Join(strings.Fields(prompt), " "))
	if len(runes) <= maxTitleRunes {
		return string(runes)
	}
	return string(runes[:maxTitleRunes-1]) + "…"
}
