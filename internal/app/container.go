package app

import (
	"context"

	"github.com/doeshing/oncomn/assets"
	"github.com/doeshing/oncomn/internal/application/doctor"
	"github.com/doeshing/oncomn/internal/application/generate"
	"github.com/doeshing/oncomn/internal/infrastructure/ai"
	"github.com/doeshing/oncomn/internal/infrastructure/config"
	"github.com/doeshing/oncomn/internal/infrastructure/metrics"
	"github.com/doeshing/oncomn/internal/infrastructure/project"
	"github.com/doeshing/oncomn/internal/infrastructure/web"
	"github.com/doeshing/oncomn/internal/pkg/logger"
	"github.com/doeshing/oncomn/internal/ports"
	"github.com/doeshing/oncomn/internal/session"
)

// Options controls how the container is assembled.
type Options struct {
	// ConfigPath overrides the config file location. Empty uses ONCOMN_CONFIG or ~/.oncomn/config.yaml.
	ConfigPath string
	Verbose    bool
}

// Container wires up application services with infrastructure adapters.
type Container struct {
	ConfigProvider  ports.ConfigProvider
	ConfigLoader    *config.FileLoader
	Logger          ports.Logger
	ProviderFactory ports.ProviderFactory
	Sessions        *session.Manager
	ProjectStore    *project.SQLiteStore
	GenerateService *generate.Service
	DoctorService   *doctor.Service
	WebServer       *web.Server
}

// BuildContainer constructs the dependency graph.
func BuildContainer(ctx context.Context, opts Options) (*Container, error) {
	cfgLoader := config.NewFileLoader(opts.ConfigPath)
	cfg, err := cfgLoader.Load(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.New(opts.Verbose)

	store, err := project.NewSQLiteStore(cfg.Storage.ProjectsDB)
	if err != nil {
		return nil, err
	}

	generationMetrics, err := metrics.NewGenerationMetrics()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	factory := ai.NewFactory(log)
	sessions := session.NewManager(log)

	generateService := &generate.Service{
		ConfigProvider:      cfgLoader,
		ProviderFactory:     factory,
		Sessions:            sessions,
		Projects:            store,
		Metrics:             generationMetrics,
		Logger:              log,
		DefaultSystemPrompt: assets.DefaultSystemPrompt,
	}

	doctorService := &doctor.Service{
		ConfigProvider: cfgLoader,
		Projects:       store,
	}

	webServer := web.NewServer(generateService, store, log)
	webServer.SetAllowedOrigins(cfg.Server.AllowedOrigins)

	return &Container{
		ConfigProvider:  cfgLoader,
		ConfigLoader:    cfgLoader,
		Logger:          log,
		ProviderFactory: factory,
		Sessions:        sessions,
		ProjectStore:    store,
		GenerateService: generateService,
		DoctorService:   doctorService,
		WebServer:       webServer,
	}, nil
}

// Close releases the resources held by the container.
func (c *Container) Close() error {
	if c == nil || c.ProjectStore == nil {
		return nil
	}
	return c.ProjectStore.Close()
}
