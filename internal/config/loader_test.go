// internal/config/loader_test.go
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "sitegen.yaml")

	content := `
site:
  title: Example
  base_url: https://example.com
  params:
    author: Ann
build:
  source: src
  output: public
  drafts: true
  clean: false
  workers: 2
logging:
  format: json
  level: debug
  file: logs/sitegen.log
watch:
  enabled: true
  debounce_ms: 500
  ignore: ["*.swp"]
schedule:
  every: 30m
webhook:
  path: /hooks/rebuild
  secret_env_var: SITEGEN_SECRET
history:
  enabled: true
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Site.Title != "Example" {
		t.Errorf("expected title Example, got %s", cfg.Site.Title)
	}
	if cfg.Site.Params["author"] != "Ann" {
		t.Errorf("expected params.author Ann, got %v", cfg.Site.Params["author"])
	}
	if cfg.Build.Source != filepath.Join(dir, "src") {
		t.Errorf("expected source resolved to %s, got %s", filepath.Join(dir, "src"), cfg.Build.Source)
	}
	if cfg.Build.Output != filepath.Join(dir, "public") {
		t.Errorf("expected output resolved, got %s", cfg.Build.Output)
	}
	if cfg.Build.Layouts != filepath.Join(dir, "src", "_layouts") {
		t.Errorf("expected layouts under source, got %s", cfg.Build.Layouts)
	}
	if cfg.Build.ShouldClean() {
		t.Error("expected clean disabled")
	}
	if cfg.Build.Workers != 2 {
		t.Errorf("expected 2 workers, got %d", cfg.Build.Workers)
	}
	if cfg.Logging.File != filepath.Join(dir, "logs", "sitegen.log") {
		t.Errorf("expected log file resolved, got %s", cfg.Logging.File)
	}
	if cfg.History.Path != filepath.Join(dir, ".sitegen", "history.db") {
		t.Errorf("expected default history path, got %s", cfg.History.Path)
	}
	if cfg.Path() != configPath {
		t.Errorf("expected Path() %s, got %s", configPath, cfg.Path())
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "sitegen.yaml")
	if err := os.WriteFile(configPath, []byte("site:\n  title: x\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Build.Source != dir {
		t.Errorf("expected source %s, got %s", dir, cfg.Build.Source)
	}
	if cfg.Build.Output != filepath.Join(dir, "_site") {
		t.Errorf("expected output _site, got %s", cfg.Build.Output)
	}
	if !cfg.Build.ShouldClean() {
		t.Error("expected clean enabled by default")
	}
	if cfg.Build.Workers <= 0 {
		t.Errorf("expected positive workers, got %d", cfg.Build.Workers)
	}
	if cfg.Logging.Format != "auto" || cfg.Logging.Level != "info" {
		t.Errorf("unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.Watch.DebounceMS != 300 {
		t.Errorf("expected debounce 300, got %d", cfg.Watch.DebounceMS)
	}
	if cfg.Server.Port != 4000 || cfg.Server.Address != "127.0.0.1" {
		t.Errorf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Webhook.SecretHeader != "X-Sitegen-Secret" {
		t.Errorf("unexpected secret header %q", cfg.Webhook.SecretHeader)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("build: [not, a, map]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(bad)
	if err == nil || !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func validConfig() *Config {
	cfg, _ := Parse([]byte("site:\n  title: t\n"))
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "invalid logging format"},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "invalid logging level"},
		{name: "zero workers", mutate: func(c *Config) { c.Build.Workers = 0 }, wantErr: "workers must be positive"},
		{name: "extension without dot", mutate: func(c *Config) { c.Build.Extensions = []string{"html"} }, wantErr: "must start with '.'"},
		{name: "output equals source", mutate: func(c *Config) { c.Build.Output = "." }, wantErr: "must differ from source"},
		{name: "source inside output", mutate: func(c *Config) { c.Build.Source = "_site/src" }, wantErr: "must not be inside output"},
		{name: "cron and every", mutate: func(c *Config) { c.Schedule = ScheduleConfig{Cron: "0 0 * * * *", Every: "1h"} }, wantErr: "not both"},
		{name: "bad cron", mutate: func(c *Config) { c.Schedule.Cron = "every tuesday" }, wantErr: "invalid schedule cron"},
		{name: "bad every", mutate: func(c *Config) { c.Schedule.Every = "soon" }, wantErr: "invalid schedule every"},
		{name: "tiny every", mutate: func(c *Config) { c.Schedule.Every = "10ms" }, wantErr: "at least 1s"},
		{name: "webhook no slash", mutate: func(c *Config) { c.Webhook.Path = "hook" }, wantErr: "must start with /"},
		{name: "webhook collides", mutate: func(c *Config) { c.Webhook.Path = "/api/builds" }, wantErr: "collides"},
		{name: "port range", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "out of range"},
		{name: "server disabled", mutate: func(c *Config) { c.Server.Port = -1 }},
		{name: "negative port", mutate: func(c *Config) { c.Server.Port = -2 }, wantErr: "out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("unexpected error message: %v", err)
			}
		})
	}
}

func TestScheduleSpec(t *testing.T) {
	tests := []struct {
		schedule ScheduleConfig
		want     string
	}{
		{schedule: ScheduleConfig{}, want: ""},
		{schedule: ScheduleConfig{Cron: "0 */5 * * * *"}, want: "0 */5 * * * *"},
		{schedule: ScheduleConfig{Cron: "@hourly"}, want: "@hourly"},
		{schedule: ScheduleConfig{Every: "30m"}, want: "@every 30m0s"},
	}

	for _, tt := range tests {
		got, err := tt.schedule.Spec()
		if err != nil {
			t.Errorf("Spec(%+v) error = %v", tt.schedule, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Spec(%+v) = %q, want %q", tt.schedule, got, tt.want)
		}
	}
}

func TestSchema(t *testing.T) {
	data, err := Schema()
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}

	props, ok := doc["properties"].(map[string]any)
	if !ok {
		t.Fatalf("schema has no properties: %s", data)
	}
	for _, key := range []string{"site", "build", "logging", "watch", "schedule", "webhook", "server", "history"} {
		if _, ok := props[key]; !ok {
			t.Errorf("schema missing property %q", key)
		}
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if !cfg.Watch.Enabled || !cfg.History.Enabled {
		t.Errorf("expected watch and history enabled: %+v", cfg)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}
