package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/doeshing/oncomn/internal/app"
	"github.com/doeshing/oncomn/internal/domain"
	"github.com/doeshing/oncomn/internal/infrastructure/cli/helpers"
	"github.com/doeshing/oncomn/internal/infrastructure/project"
	"github.com/doeshing/oncomn/internal/ports"
)

// NewProjectCommand creates the project command with all subcommands.
// The prompter confirms destructive operations.
func NewProjectCommand(container *app.Container, prompter ports.ConfirmationPrompter) *cobra.Command {
	projectCmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"projects"},
		Short:   "Manage saved projects",
	}

	projectCmd.AddCommand(
		newProjectListCommand(container),
		newProjectCreateCommand(container),
		newProjectShowCommand(container),
		newProjectDeleteCommand(container, prompter),
		newProjectExportCommand(container),
		newProjectPreviewCommand(container),
	)

	return projectCmd
}

// newProjectListCommand creates the 'project list' subcommand
func newProjectListCommand(container *app.Container) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects, most recently modified first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return errors.New(ErrInvalidLimit)
			}
			return listProjects(cmd.Context(), cmd.OutOrStdout(), container, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", domain.DefaultProjectListLimit, "Max projects to show")
	return cmd
}

// newProjectCreateCommand creates the 'project create' subcommand
func newProjectCreateCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "create [name]",
		Short: "Create an empty project seeded with the welcome component",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return createProject(cmd.Context(), cmd.OutOrStdout(), container, name)
		},
	}
}

// newProjectShowCommand creates the 'project show' subcommand
func newProjectShowCommand(container *app.Container) *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project's prompts and code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return showProject(cmd.Context(), cmd.OutOrStdout(), container, args[0], plain)
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "Print raw markdown without terminal styling")
	return cmd
}

// newProjectDeleteCommand creates the 'project delete' subcommand
func newProjectDeleteCommand(container *app.Container, prompter ports.ConfirmationPrompter) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return deleteProject(cmd.Context(), cmd.OutOrStdout(), container, prompter, args[0], yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")
	return cmd
}

// newProjectExportCommand creates the 'project export' subcommand
func newProjectExportCommand(container *app.Container) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write index.html, style.css, script.js and preview.html",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := outDir
			if dir == "" {
				dir = args[0]
			}
			return exportProject(cmd.Context(), cmd.OutOrStdout(), container, args[0], dir)
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Target directory (default: ./<id>)")
	return cmd
}

// newProjectPreviewCommand creates the 'project preview' subcommand
func newProjectPreviewCommand(container *app.Container) *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "preview <id>",
		Short: "Print the composed single-file preview document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return previewProject(cmd.Context(), cmd.OutOrStdout(), container, args[0], outFile)
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "", "Write to a file instead of stdout")
	return cmd
}

func projectStore(container *app.Container) (ports.ProjectRepository, error) {
	if container.ProjectStore == nil {
		return nil, errors.New(ErrProjectStoreUnavailable)
	}
	return container.ProjectStore, nil
}

// listProjects prints one line per project
func listProjects(ctx context.Context, out io.Writer, container *app.Container, limit int) error {
	store, err := projectStore(container)
	if err != nil {
		return err
	}

	projects, err := store.List(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}
	if len(projects) == 0 {
		fmt.Fprintln(out, MsgNoProjects)
		return nil
	}

	fmt.Fprintf(out, "ID\tNAME\tMODIFIED\tPROMPTS\n")
	for _, p := range projects {
		fmt.Fprintf(out, "%s\t%s\t%s\t%d\n",
			p.ID,
			p.Name,
			humanize.Time(p.LastModified),
			len(p.Prompts))
	}
	return nil
}

// createProject stores a new project and prints its id
func createProject(ctx context.Context, out io.Writer, container *app.Container, name string) error {
	store, err := projectStore(container)
	if err != nil {
		return err
	}

	p := domain.NewProject(uuid.NewString(), name, time.Now().UTC())
	if err := store.Create(ctx, p); err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	fmt.Fprintf(out, "Created project %q\n%s\n", p.Name, p.ID)
	return nil
}

// showProject prints project metadata, its prompt history and its code
func showProject(ctx context.Context, out io.Writer, container *app.Container, id string, plain bool) error {
	store, err := projectStore(container)
	if err != nil {
		return err
	}

	p, err := store.Get(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, helpers.Title(p.Name))
	fmt.Fprintf(out, "ID:       %s\n", p.ID)
	fmt.Fprintf(out, "Created:  %s\n", p.CreatedAt.Local().Format(domain.TimestampFormat))
	fmt.Fprintf(out, "Modified: %s (%s)\n", p.LastModified.Local().Format(domain.TimestampFormat), humanize.Time(p.LastModified))

	if len(p.Prompts) > 0 {
		fmt.Fprintln(out, "\nPrompts:")
		for i, entry := range p.Prompts {
			fmt.Fprintf(out, "%3d. [%s] %s %s\n",
				i+1,
				entry.Sender,
				entry.Message,
				helpers.Muted(humanize.Time(entry.Timestamp)))
		}
	}

	fmt.Fprintln(out)
	fmt.Fprint(out, helpers.NewMarkdownRenderer(plain).Render(helpers.ResultMarkdown(p.Code, nil)))
	return nil
}

// deleteProject removes a project after confirmation
func deleteProject(ctx context.Context, out io.Writer, container *app.Container, prompter ports.ConfirmationPrompter, id string, yes bool) error {
	store, err := projectStore(container)
	if err != nil {
		return err
	}

	p, err := store.Get(ctx, id)
	if err != nil {
		return err
	}

	if !yes {
		if prompter == nil || !prompter.Enabled() {
			return errors.New(ErrConfirmationRequired)
		}
		confirmed, err := prompter.Confirm(fmt.Sprintf("Delete project %q (%d prompts)?", p.Name, len(p.Prompts)))
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Fprintln(out, MsgDeleteCancelled)
			return nil
		}
	}

	if err := store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	fmt.Fprintf(out, "Deleted project %q\n", p.Name)
	return nil
}

// exportProject writes the project's code as static files
func exportProject(ctx context.Context, out io.Writer, container *app.Container, id, dir string) error {
	store, err := projectStore(container)
	if err != nil {
		return err
	}

	p, err := store.Get(ctx, id)
	if err != nil {
		return err
	}

	written, err := project.Export(p.Code, p.Name, dir)
	if err != nil {
		return err
	}
	for _, path := range written {
		fmt.Fprintln(out, path)
	}
	return nil
}

// previewProject prints or writes the composed preview document
func previewProject(ctx context.Context, out io.Writer, container *app.Container, id, outFile string) error {
	store, err := projectStore(container)
	if err != nil {
		return err
	}

	p, err := store.Get(ctx, id)
	if err != nil {
		return err
	}

	doc := p.Code.PreviewDocument()
	if outFile == "" {
		fmt.Fprint(out, doc)
		return nil
	}
	if err := os.WriteFile(outFile, []byte(doc), domain.ExportFilePermissions); err != nil {
		return fmt.Errorf("failed to write preview: %w", err)
	}
	fmt.Fprintln(out, outFile)
	return nil
}
