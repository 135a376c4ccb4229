// Package config loads and validates the site.yaml project configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the configuration file sitewright looks for in the
// project root.
const DefaultFileName = "site.yaml"

// Config represents the project configuration.
type Config struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description,omitempty"`
	BaseURL     string `yaml:"base_url,omitempty"`

	ContentDir   string `yaml:"content_dir,omitempty"`
	TemplatesDir string `yaml:"templates_dir,omitempty"`
	AssetsDir    string `yaml:"assets_dir,omitempty"`

	Theme string `yaml:"theme,omitempty"`

	// Plugins lists the plugins to load, in order. Each entry is either a
	// bare name or a mapping with name, enabled, and config keys.
	Plugins []PluginRef `yaml:"plugins,omitempty"`

	// PluginsDir is where external plugin packages are discovered.
	PluginsDir string `yaml:"plugins_dir,omitempty"`

	Output  OutputConfig  `yaml:"output,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
	Watch   WatchConfig   `yaml:"watch,omitempty"`
	Journal JournalConfig `yaml:"journal,omitempty"`

	// raw keeps the configuration as a plain map for the config:loaded
	// hook, so external plugins see it without importing internal types.
	raw map[string]any
}

// OutputConfig controls where and how the rendered site is written.
type OutputConfig struct {
	Directory string `yaml:"directory,omitempty"`
	Clean     bool   `yaml:"clean,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// WatchConfig tunes the watch-mode rebuild loop.
type WatchConfig struct {
	// QuietWindow is how long the file system must stay quiet before a
	// rebuild fires.
	QuietWindow time.Duration `yaml:"quiet_window,omitempty"`

	// MaxDelay caps how long rapid successive changes can postpone a
	// rebuild.
	MaxDelay time.Duration `yaml:"max_delay,omitempty"`

	// FullRebuildInterval schedules periodic full rebuilds; zero disables
	// them.
	FullRebuildInterval time.Duration `yaml:"full_rebuild_interval,omitempty"`

	// MetricsListen exposes Prometheus metrics on this address while
	// watching; empty disables the listener.
	MetricsListen string `yaml:"metrics_listen,omitempty"`
}

// JournalConfig controls the SQLite build journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// Raw returns the configuration as the plain map it was parsed from.
func (c *Config) Raw() map[string]any {
	return c.raw
}

// StateDir returns the project-local directory for persisted build state.
func (c *Config) StateDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".sitewright")
}

// Load reads, expands, and validates the configuration at configPath.
// Environment variables referenced as ${VAR} in the file are expanded;
// a .env file next to the working directory is loaded first if present.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s", configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := yaml.Unmarshal([]byte(expanded), &cfg.raw); err != nil {
		return nil, fmt.Errorf("unmarshaling raw config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Title == "" {
		c.Title = "Documentation Site"
	}
	if c.ContentDir == "" {
		c.ContentDir = "content"
	}
	if c.TemplatesDir == "" {
		c.TemplatesDir = "templates"
	}
	if c.AssetsDir == "" {
		c.AssetsDir = "assets"
	}
	if c.Output.Directory == "" {
		c.Output.Directory = "./public"
		c.Output.Clean = true
	}
	if c.PluginsDir == "" {
		c.PluginsDir = "./plugins"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = string(LogLevelInfo)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = string(LogFormatText)
	}
	if c.Watch.QuietWindow <= 0 {
		c.Watch.QuietWindow = 400 * time.Millisecond
	}
	if c.Watch.MaxDelay <= 0 {
		c.Watch.MaxDelay = 5 * time.Second
	}
	if c.Journal.Path == "" {
		c.Journal.Path = filepath.Join(".sitewright", "journal.db")
	}
}

func (c *Config) validate() error {
	seen := make(map[string]struct{}, len(c.Plugins))
	for _, ref := range c.Plugins {
		if ref.Name == "" {
			return fmt.Errorf("plugin entry with empty name")
		}
		if _, dup := seen[ref.Name]; dup {
			return fmt.Errorf("plugin %q listed twice", ref.Name)
		}
		seen[ref.Name] = struct{}{}
	}
	if c.Watch.QuietWindow > c.Watch.MaxDelay {
		return fmt.Errorf("watch.quiet_window (%s) must not exceed watch.max_delay (%s)",
			c.Watch.QuietWindow, c.Watch.MaxDelay)
	}
	return nil
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Config{
		Title:       "My Documentation Site",
		Description: "Built with sitewright",
		BaseURL:     "https://docs.example.com",
		ContentDir:  "content",
		Theme:       "plain",
		Plugins: []PluginRef{
			{Name: "gitmeta", Enabled: true},
			{Name: "searchindex", Enabled: true},
		},
		Output: OutputConfig{
			Directory: "./public",
			Clean:     true,
		},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("marshaling example config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
