// internal/config/types.go
package config

// Config is the site configuration loaded from sitegen.yaml
type Config struct {
	Site     SiteConfig     `yaml:"site" jsonschema:"description=Values exposed to templates as site"`
	Build    BuildConfig    `yaml:"build"`
	Logging  LoggingConfig  `yaml:"logging"`
	Watch    WatchConfig    `yaml:"watch"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Server   ServerConfig   `yaml:"server"`
	History  HistoryConfig  `yaml:"history"`

	path string
}

type SiteConfig struct {
	Title   string         `yaml:"title"`
	BaseURL string         `yaml:"base_url"`
	Params  map[string]any `yaml:"params" jsonschema:"description=Free-form values available as site.params"`
}

type BuildConfig struct {
	Source          string   `yaml:"source" jsonschema:"description=Source directory relative to the config file,default=."`
	Output          string   `yaml:"output" jsonschema:"default=_site"`
	Layouts         string   `yaml:"layouts" jsonschema:"description=Layouts directory relative to source,default=_layouts"`
	Extensions      []string `yaml:"extensions" jsonschema:"description=File extensions rendered as templates when they carry front matter"`
	Drafts          bool     `yaml:"drafts"`
	Clean           *bool    `yaml:"clean" jsonschema:"description=Empty the output directory before building (default true)"`
	Workers         int      `yaml:"workers" jsonschema:"minimum=0"`
	StrictVariables bool     `yaml:"strict_variables" jsonschema:"description=Fail rendering on references to missing variables"`
}

// ShouldClean reports whether the output directory is emptied before a build.
func (b BuildConfig) ShouldClean() bool {
	return b.Clean == nil || *b.Clean
}

type LoggingConfig struct {
	Format    string `yaml:"format" jsonschema:"enum=auto,enum=text,enum=json"`
	Level     string `yaml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	File      string `yaml:"file" jsonschema:"description=Log file path; rotated when it exceeds max_size_mb"`
	MaxSizeMB int    `yaml:"max_size_mb"`
}

type WatchConfig struct {
	Enabled    bool     `yaml:"enabled"`
	DebounceMS int      `yaml:"debounce_ms"`
	Ignore     []string `yaml:"ignore" jsonschema:"description=Glob patterns matched against file names"`
}

type ScheduleConfig struct {
	Cron  string `yaml:"cron" jsonschema:"description=Cron expression with a seconds field"`
	Every string `yaml:"every" jsonschema:"description=Go duration between scheduled builds (e.g. 30m)"`
}

type WebhookConfig struct {
	Path         string `yaml:"path"`
	SecretHeader string `yaml:"secret_header"`
	SecretEnvVar string `yaml:"secret_env_var"`
}

type ServerConfig struct {
	Address     string `yaml:"address"`
	Port        int    `yaml:"port" jsonschema:"description=HTTP port for the daemon; -1 disables the server,minimum=-1,maximum=65535"`
	ServeOutput bool   `yaml:"serve_output"`
}

type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string {
	return c.path
}
