package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/doeshing/oncomn/internal/app"
	"github.com/doeshing/oncomn/internal/domain"
)

// NewDoctorCommand creates the doctor command
func NewDoctorCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose configuration, models and the project store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctorDiagnostics(cmd, cmd.OutOrStdout(), container)
		},
	}
}

// runDoctorDiagnostics runs environment diagnostics
func runDoctorDiagnostics(cmd *cobra.Command, out io.Writer, container *app.Container) error {
	if container.DoctorService == nil {
		return errors.New(ErrDoctorServiceUnavailable)
	}

	report, err := container.DoctorService.Run(cmd.Context())

	// Display report even if there were errors
	displayDoctorReport(out, report)

	if err != nil {
		return fmt.Errorf("diagnostics completed with errors: %w", err)
	}
	if !report.Healthy() {
		return fmt.Errorf("diagnostics found problems")
	}
	return nil
}

// displayDoctorReport displays the health check report
func displayDoctorReport(out io.Writer, report domain.HealthReport) {
	for _, check := range report.Checks {
		fmt.Fprintf(out, "[%s] %s - %s\n",
			statusLabel(check.Status),
			check.Name,
			check.Details)
	}
}

func statusLabel(status domain.HealthStatus) string {
	label := strings.ToUpper(string(status))
	switch status {
	case domain.HealthOK:
		return color.GreenString(label)
	case domain.HealthWarn:
		return color.YellowString(label)
	default:
		return color.RedString(label)
	}
}
