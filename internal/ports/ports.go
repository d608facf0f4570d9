// Package ports defines the interfaces (ports) for the hexagonal architecture.
//
// This package establishes the contract between the application core and external
// adapters (infrastructure). Following the Ports and Adapters (Hexagonal) pattern,
// these interfaces allow the application to remain independent of specific
// implementations like databases, HTTP clients, or CLI frameworks.
//
// Key architectural concepts:
//   - Ports: Interfaces defined here (e.g., Provider, ConfigProvider)
//   - Adapters: Concrete implementations in the infrastructure layer
//   - Dependency inversion: Application depends on abstractions, not implementations
package ports

import (
	"context"
	"time"

	"github.com/doeshing/oncomn/internal/domain"
)

// ConfigProvider loads the latest configuration from persistent storage.
// Implementations typically read from ~/.oncomn/config.yaml.
type ConfigProvider interface {
	Load(context.Context) (domain.Config, error)
}

// ProviderFactory builds chat-completion providers based on model definitions.
type ProviderFactory interface {
	ForModel(domain.ModelDefinition) (Provider, error)
}

// Provider wraps one chat-completion endpoint.
//
// Stream opens one connection, calls onChunk synchronously for every text
// delta in arrival order and returns nil on the [DONE] sentinel. It returns
// domain.ErrCancelled when ctx is cancelled and never calls onChunk after that.
// Complete performs a single non-streaming request and returns the content.
type Provider interface {
	Name() string
	Model() domain.ModelDefinition
	Stream(ctx context.Context, req ProviderRequest, onChunk func(string)) error
	Complete(ctx context.Context, req ProviderRequest) (string, error)
}

// ProviderRequest contains all data needed for one chat completion.
type ProviderRequest struct {
	Prompt       string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// ProjectRepository persists projects in the local store.
type ProjectRepository interface {
	Create(ctx context.Context, project domain.Project) error
	Get(ctx context.Context, id string) (domain.Project, error)
	List(ctx context.Context, limit int) ([]domain.Project, error)
	Update(ctx context.Context, project domain.Project) error
	Delete(ctx context.Context, id string) error
}

// GenerationMetrics records the outcome of every generation.
type GenerationMetrics interface {
	RecordStarted(ctx context.Context, model string)
	RecordCompleted(ctx context.Context, model string, duration time.Duration)
	RecordCancelled(ctx context.Context, model string, duration time.Duration)
	RecordFailed(ctx context.Context, model string, kind string, duration time.Duration)
}

// ConfirmationPrompter handles interactive yes/no confirmations for destructive commands.
type ConfirmationPrompter interface {
	Confirm(message string) (bool, error)
	Enabled() bool
}

// Clipboard provides cross-platform clipboard integration for copying generated code.
type Clipboard interface {
	Copy(text string) error
	Enabled() bool
}

// Logger provides structured logging abstraction for the application layer.
// Implementations can route to different backends (stdout, files, external services).
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
}
