// Package config provides configuration loading and management for datainspect.
// It handles loading configuration and project documents from YAML files
// (JSON is accepted as well) and provides default values.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/jmgilman/go/errors"
	"gopkg.in/yaml.v3"

	"datainspect/internal/models"
	"datainspect/pkg/inspecterr"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// App holds logging and HTTP settings
	App AppConfig `yaml:"app"`

	// Prefetch controls the background decode workers
	Prefetch PrefetchConfig `yaml:"prefetch"`

	// Watch controls the source directory watcher
	Watch WatchConfig `yaml:"watch"`

	// Project is the persisted project document: sources and viewer flags
	Project Project `yaml:"project"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	// LogLevel is the minimum level of structured log output
	LogLevel slog.Level `yaml:"log_level"`

	// HTTP configures the control server started by "serve"
	HTTP HTTPConfig `yaml:"http"`
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns the listen address
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// PrefetchConfig holds background decode settings
type PrefetchConfig struct {
	// MaxWorkers bounds concurrent prefetch decodes; 0 uses all CPU cores
	MaxWorkers int `yaml:"max_workers"`
}

// Validate validates the prefetch configuration
func (c *PrefetchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxWorkers, validation.Min(0)),
	)
}

// WatchConfig holds source directory watcher settings
type WatchConfig struct {
	// Enabled starts the watcher with "serve"
	Enabled bool `yaml:"enabled"`

	// Debounce is how long a directory must be quiet before it is rescanned
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watcher configuration
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// Project is the persisted description of an inspection session. Key names
// match the project files written by earlier versions of the tool.
type Project struct {
	Name             string        `yaml:"project_name" json:"project_name"`
	KeepCamera       bool          `yaml:"keep_camera" json:"keep_camera"`
	KeepColor        bool          `yaml:"keep_color" json:"keep_color"`
	KeepProperties   bool          `yaml:"keep_properties" json:"keep_properties"`
	PrefetchPrevious bool          `yaml:"prefetch_prev" json:"prefetch_prev"`
	PrefetchNext     bool          `yaml:"prefetch_next" json:"prefetch_next"`
	Layers           []LayerConfig `yaml:"layers,omitempty" json:"layers"`
}

// LayerConfig describes one source
type LayerConfig struct {
	Name string      `yaml:"name" json:"name"`
	Path string      `yaml:"path" json:"path"`
	Type string      `yaml:"dtype" json:"dtype"`
	Kind models.Kind `yaml:"ltype" json:"ltype"`
}

// Validate validates a source description
func (c *LayerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Kind, validation.In(models.Image, models.Labels)),
	)
}

// Validate checks every layer and rejects duplicate names, since the name
// is the key into the prefetch cache and the layer list
func (p *Project) Validate() error {
	seen := make(map[string]bool, len(p.Layers))
	for i := range p.Layers {
		if err := p.Layers[i].Validate(); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
		name := p.Layers[i].Name
		if seen[name] {
			return errors.WrapWithContext(inspecterr.ErrDuplicateSource, errors.CodeInvalidConfig,
				"invalid project", map[string]interface{}{"source": name})
		}
		seen[name] = true
	}
	return nil
}

// Validate validates the whole configuration
func (c *Config) Validate() error {
	if err := c.App.HTTP.Validate(); err != nil {
		return fmt.Errorf("app.http: %w", err)
	}
	if err := c.Prefetch.Validate(); err != nil {
		return fmt.Errorf("prefetch: %w", err)
	}
	if err := c.Watch.Validate(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	if err := c.Project.Validate(); err != nil {
		return fmt.Errorf("project: %w", err)
	}
	return nil
}

// DefaultProject returns a project with the defaults of a new session
func DefaultProject() Project {
	return Project{
		KeepCamera:       false,
		KeepColor:        true,
		KeepProperties:   true,
		PrefetchPrevious: true,
		PrefetchNext:     true,
	}
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.App.LogLevel = slog.LevelInfo
	cfg.App.HTTP.Port = 8080

	// 0 means one worker per CPU core
	cfg.Prefetch.MaxWorkers = 0

	cfg.Watch.Enabled = true
	cfg.Watch.Debounce = 200 * time.Millisecond

	cfg.Project = DefaultProject()

	return cfg
}

// LoadConfig loads configuration from a YAML file, expanding ${VAR}
// references from the environment.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// LoadProject loads a standalone project document. YAML and JSON are both
// accepted; keys missing from the file keep their defaults.
func LoadProject(projectPath string) (*Project, error) {
	data, err := os.ReadFile(projectPath)
	if err != nil {
		return nil, fmt.Errorf("error reading project file: %w", err)
	}

	p := DefaultProject()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("error parsing project file: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("project validation failed: %w", err)
	}

	return &p, nil
}

// SaveProject writes a project document, as JSON for a .json path and as
// YAML otherwise. A project without a name is rejected.
func SaveProject(p *Project, projectPath string) error {
	if p.Name == "" {
		return errors.New(errors.CodeInvalidInput, "project name not set")
	}

	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(projectPath), ".json") {
		data, err = json.MarshalIndent(p, "", "    ")
	} else {
		data, err = yaml.Marshal(p)
	}
	if err != nil {
		return fmt.Errorf("error marshaling project: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(projectPath), 0755); err != nil {
		return fmt.Errorf("error creating project directory: %w", err)
	}
	if err := os.WriteFile(projectPath, data, 0644); err != nil {
		return fmt.Errorf("error writing project file: %w", err)
	}

	return nil
}
