// internal/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file name looked up in the working directory.
const DefaultFile = "sitegen.yaml"

// Load loads the site configuration from a YAML file. Relative paths in the
// file are resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	cfg.path = abs
	cfg.resolvePaths(filepath.Dir(abs))
	return cfg, nil
}

// Parse decodes configuration from YAML and applies defaults. Paths are left
// as written.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the configuration written by "sitegen init".
func Default() *Config {
	cfg := &Config{
		Site: SiteConfig{
			Title:   "My Site",
			BaseURL: "http://localhost:4000",
		},
		Watch:   WatchConfig{Enabled: true},
		History: HistoryConfig{Enabled: true},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Build.Source == "" {
		cfg.Build.Source = "."
	}
	if cfg.Build.Output == "" {
		cfg.Build.Output = "_site"
	}
	if cfg.Build.Layouts == "" {
		cfg.Build.Layouts = "_layouts"
	}
	if len(cfg.Build.Extensions) == 0 {
		cfg.Build.Extensions = []string{".html", ".htm", ".xml", ".txt", ".json"}
	}
	if cfg.Build.Workers <= 0 {
		cfg.Build.Workers = runtime.NumCPU()
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "auto"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		cfg.Logging.MaxSizeMB = 50
	}
	if cfg.Watch.DebounceMS <= 0 {
		cfg.Watch.DebounceMS = 300
	}
	if cfg.Webhook.SecretHeader == "" {
		cfg.Webhook.SecretHeader = "X-Sitegen-Secret"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 4000
	}
	if cfg.History.Path == "" {
		cfg.History.Path = filepath.Join(".sitegen", "history.db")
	}
	if cfg.History.RetentionDays <= 0 {
		cfg.History.RetentionDays = 90
	}
}

func (c *Config) resolvePaths(base string) {
	c.Build.Source = resolve(base, c.Build.Source)
	c.Build.Output = resolve(base, c.Build.Output)
	c.Build.Layouts = resolve(c.Build.Source, c.Build.Layouts)
	c.History.Path = resolve(base, c.History.Path)
	if c.Logging.File != "" {
		c.Logging.File = resolve(base, c.Logging.File)
	}
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
