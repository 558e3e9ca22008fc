package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"lorebind/internal/store"
)

const DefaultOwner = "local"

type ProjectConfig struct {
	Project  string         `yaml:"project"`
	Version  int            `yaml:"version"`
	Owner    string         `yaml:"owner"`
	Database DatabaseConfig `yaml:"database"`
	Books    []Book         `yaml:"books"`
	Exclude  []string       `yaml:"exclude"`
	Settings map[string]any `yaml:"settings"`
	Log      LogConfig      `yaml:"log"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type Book struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Paths       []string  `yaml:"paths"`
	Bindings    []Binding `yaml:"bindings"`
}

type Binding struct {
	Scope        store.Scope `yaml:"scope"`
	ScopeID      string      `yaml:"scope_id"`
	DisplayOrder int         `yaml:"display_order"`
	Enabled      *bool       `yaml:"enabled"`
	Role         string      `yaml:"role"`
}

// IsEnabled reports the binding's enabled flag, which defaults to true.
func (b Binding) IsEnabled() bool {
	return b.Enabled == nil || *b.Enabled
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func LoadProjectConfig(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	applyDefaults(&cfg)
	if err := validateProjectConfig(&cfg); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *ProjectConfig) {
	if strings.TrimSpace(cfg.Owner) == "" {
		cfg.Owner = DefaultOwner
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

func validateProjectConfig(cfg *ProjectConfig) error {
	if strings.TrimSpace(cfg.Project) == "" {
		return fmt.Errorf("project name is required")
	}
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported version: %d", cfg.Version)
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return fmt.Errorf("database dsn is required")
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level: %s", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unsupported log format: %s", cfg.Log.Format)
	}

	seen := make(map[string]struct{})
	for i, book := range cfg.Books {
		if strings.TrimSpace(book.Name) == "" {
			return fmt.Errorf("book %d name is required", i)
		}
		if len(book.Paths) == 0 {
			return fmt.Errorf("book %s paths are required", book.Name)
		}
		key := store.NormalizeName(book.Name)
		if _, exists := seen[key]; exists {
			return fmt.Errorf("duplicate book name: %s", book.Name)
		}
		seen[key] = struct{}{}

		for j, b := range book.Bindings {
			if !b.Scope.Valid() {
				return fmt.Errorf("book %s binding %d has unknown scope: %q", book.Name, j, b.Scope)
			}
			if b.Scope != store.ScopeGlobal && strings.TrimSpace(b.ScopeID) == "" {
				return fmt.Errorf("book %s binding %d scope_id is required for %s scope", book.Name, j, b.Scope)
			}
			if b.Scope == store.ScopeGlobal && b.ScopeID != "" {
				return fmt.Errorf("book %s binding %d global scope takes no scope_id", book.Name, j)
			}
		}
	}

	return nil
}
