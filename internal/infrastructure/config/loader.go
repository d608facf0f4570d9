package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"github.com/doeshing/oncomn/assets"
	"github.com/doeshing/oncomn/internal/domain"
	"github.com/doeshing/oncomn/internal/pkg/filesystem"
	"github.com/doeshing/oncomn/internal/ports"
)

// EnvConfigPath overrides the config location.
const EnvConfigPath = "ONCOMN_CONFIG"

const projectsDBName = "projects.db"

// FileLoader loads YAML configuration from ~/.oncomn/config.yaml (overridable via ONCOMN_CONFIG).
type FileLoader struct {
	overridePath string
}

// NewFileLoader builds a new loader. An empty path falls back to the environment and home directory.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{overridePath: path}
}

// Load implements ports.ConfigProvider.
func (l *FileLoader) Load(context.Context) (domain.Config, error) {
	path := l.resolvePath()
	if err := ensureConfigDir(path); err != nil {
		return domain.Config{}, fmt.Errorf("ensure config dir: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return domain.Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := writeDefault(path); err != nil {
			return domain.Config{}, err
		}
		data = assets.DefaultConfigYAML
	}

	var cfg domain.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return domain.Config{}, fmt.Errorf("parse %s: %w", path, err)
	}

	return hydrateDefaults(cfg, path)
}

// Path returns the resolved config file path.
func (l *FileLoader) Path() string {
	return l.resolvePath()
}

// Reset overwrites the config file with the embedded defaults.
func (l *FileLoader) Reset(ctx context.Context) (domain.Config, error) {
	path := l.resolvePath()
	if err := ensureConfigDir(path); err != nil {
		return domain.Config{}, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := writeDefault(path); err != nil {
		return domain.Config{}, err
	}
	return l.Load(ctx)
}

// Save validates cfg and writes it to the config file.
func (l *FileLoader) Save(cfg domain.Config) error {
	if err := cfg.ValidateConsistency(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	path := l.resolvePath()
	if err := ensureConfigDir(path); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, domain.SecureFilePermissions); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Backup copies the current config file next to itself with a timestamp suffix.
func (l *FileLoader) Backup() (string, error) {
	path := l.resolvePath()
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read config: %w", err)
	}
	backupPath := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102-150405"))
	if err := os.WriteFile(backupPath, data, domain.SecureFilePermissions); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	return backupPath, nil
}

// Defaults returns the built-in configuration as Load would hydrate it.
func (l *FileLoader) Defaults() (domain.Config, error) {
	cfg, err := embeddedConfig()
	if err != nil {
		return domain.Config{}, err
	}
	return hydrateDefaults(cfg, l.resolvePath())
}

func (l *FileLoader) resolvePath() string {
	if l.overridePath != "" {
		return filesystem.ExpandHome(l.overridePath)
	}
	if custom := os.Getenv(EnvConfigPath); custom != "" {
		return filesystem.ExpandHome(custom)
	}
	return filepath.Join(filesystem.UserHomeDir(), ".oncomn", "config.yaml")
}

func ensureConfigDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, domain.DirectoryPermissions)
}

func writeDefault(path string) error {
	if err := os.WriteFile(path, assets.DefaultConfigYAML, domain.SecureFilePermissions); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

// embeddedConfig parses the built-in defaults.
func embeddedConfig() (domain.Config, error) {
	var cfg domain.Config
	if err := yaml.Unmarshal(assets.DefaultConfigYAML, &cfg); err != nil {
		return domain.Config{}, fmt.Errorf("parse embedded config: %w", err)
	}
	return cfg, nil
}

// hydrateDefaults fills zero values from struct tags and the embedded model list.
func hydrateDefaults(cfg domain.Config, path string) (domain.Config, error) {
	if err := defaults.Set(&cfg); err != nil {
		return domain.Config{}, fmt.Errorf("apply config defaults: %w", err)
	}

	if cfg.ConfigFormatVersion == "" {
		cfg.ConfigFormatVersion = "1"
	}

	if len(cfg.Models) == 0 {
		builtin, err := embeddedConfig()
		if err != nil {
			return domain.Config{}, err
		}
		cfg.Models = builtin.Models
	}

	switch {
	case cfg.Storage.ProjectsDB == "":
		cfg.Storage.ProjectsDB = filepath.Join(filepath.Dir(path), projectsDBName)
	default:
		cfg.Storage.ProjectsDB = filesystem.ExpandHome(cfg.Storage.ProjectsDB)
	}

	return cfg, nil
}

var _ ports.ConfigProvider = (*FileLoader)(nil)
