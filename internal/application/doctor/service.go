package doctor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/doeshing/oncomn/internal/domain"
	"github.com/doeshing/oncomn/internal/ports"
)

// Service runs environment diagnostics.
type Service struct {
	ConfigProvider ports.ConfigProvider
	Projects       ports.ProjectRepository
}

// Run executes checks and returns a report. The error is set only when the
// configuration cannot be loaded at all.
func (s *Service) Run(ctx context.Context) (domain.HealthReport, error) {
	var checks []domain.HealthCheck

	cfg, err := s.ConfigProvider.Load(ctx)
	if err != nil {
		checks = append(checks, fail("Config file", fmt.Sprintf("load failed: %v", err)))
		return domain.HealthReport{Checks: checks}, err
	}
	checks = append(checks, ok("Config file", fmt.Sprintf("format version %s", cfg.ConfigFormatVersion)))

	if err := cfg.ValidateConsistency(); err != nil {
		checks = append(checks, fail("Models", err.Error()))
	} else {
		checks = append(checks, ok("Models", fmt.Sprintf("%d configured", len(cfg.Models))))
	}

	checks = append(checks, preferenceCheck(cfg))
	checks = append(checks, apiKeyCheck(cfg.Models))

	if s.Projects != nil {
		if _, err := s.Projects.List(ctx, 1); err != nil {
			checks = append(checks, fail("Project store", err.Error()))
		} else {
			checks = append(checks, ok("Project store", cfg.Storage.ProjectsDB))
		}
	} else {
		checks = append(checks, warn("Project store", "not initialized"))
	}

	return domain.HealthReport{Checks: checks}, nil
}

func preferenceCheck(cfg domain.Config) domain.HealthCheck {
	model, err := cfg.ModelFor(cfg.Preferences.UseLocalModel, "")
	if err != nil {
		return fail("Default model", err.Error())
	}
	return ok("Default model", fmt.Sprintf("%s (%s)", model.Name, model.ModelID))
}

func apiKeyCheck(models []domain.ModelDefinition) domain.HealthCheck {
	var missing []string
	for _, model := range models {
		if model.RequiresAuth() && os.Getenv(model.AuthEnvVar) == "" {
			missing = append(missing, fmt.Sprintf("%s (%s)", model.AuthEnvVar, model.Name))
		}
	}
	if len(missing) > 0 {
		return warn("API keys", "missing: "+strings.Join(missing, ", "))
	}
	return ok("API keys", "detected for configured models")
}

func ok(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthOK, Details: details}
}

func warn(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthWarn, Details: details}
}

func fail(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthError, Details: details}
}
