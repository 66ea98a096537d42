// internal/config/validate.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts expressions with a leading seconds field and descriptors
// such as @hourly or @every 30m.
var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate checks a loaded configuration for values that cannot work.
func Validate(cfg *Config) error {
	switch cfg.Logging.Format {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("invalid logging format %q (want auto, text or json)", cfg.Logging.Format)
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", cfg.Logging.Level)
	}

	if cfg.Build.Workers <= 0 {
		return fmt.Errorf("build workers must be positive, got %d", cfg.Build.Workers)
	}
	for _, ext := range cfg.Build.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("build extension %q must start with '.'", ext)
		}
	}

	src := filepath.Clean(cfg.Build.Source)
	out := filepath.Clean(cfg.Build.Output)
	if src == out {
		return fmt.Errorf("build output %s must differ from source", out)
	}
	if isWithin(out, src) {
		return fmt.Errorf("build source %s must not be inside output %s", src, out)
	}

	if _, err := cfg.Schedule.Spec(); err != nil {
		return err
	}

	if p := cfg.Webhook.Path; p != "" {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("webhook path %q must start with /", p)
		}
		if p == "/health" || strings.HasPrefix(p, "/api/") {
			return fmt.Errorf("webhook path %q collides with a built-in endpoint", p)
		}
	}

	if cfg.Server.Port < -1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", cfg.Server.Port)
	}
	return nil
}

// Spec returns the cron spec for the schedule, or "" when no schedule is set.
func (s ScheduleConfig) Spec() (string, error) {
	switch {
	case s.Cron != "" && s.Every != "":
		return "", fmt.Errorf("schedule: set either cron or every, not both")
	case s.Cron != "":
		if _, err := cronParser.Parse(s.Cron); err != nil {
			return "", fmt.Errorf("invalid schedule cron %q: %w", s.Cron, err)
		}
		return s.Cron, nil
	case s.Every != "":
		d, err := time.ParseDuration(s.Every)
		if err != nil {
			return "", fmt.Errorf("invalid schedule every %q: %w", s.Every, err)
		}
		if d < time.Second {
			return "", fmt.Errorf("schedule every %q must be at least 1s", s.Every)
		}
		return "@every " + d.String(), nil
	default:
		return "", nil
	}
}

// CronParser returns the parser used for schedule expressions.
func CronParser() cron.Parser {
	return cronParser
}

func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
