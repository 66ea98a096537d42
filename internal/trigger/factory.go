// internal/trigger/factory.go
package trigger

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/colebrumley/sitegen/internal/config"
)

// FromConfig creates the triggers enabled by cfg, starting with the startup
// trigger. The webhook, when configured, is also returned on its own so the
// HTTP server can mount it.
func FromConfig(cfg *config.Config, logger *slog.Logger) ([]Trigger, *Webhook, error) {
	triggers := []Trigger{NewStartup()}

	if cfg.Watch.Enabled {
		w, err := NewWatch(cfg.Build.Source, cfg.Watch, WatchOptions{
			Skip:       []string{cfg.Build.Output, filepath.Dir(cfg.History.Path)},
			ConfigFile: cfg.Path(),
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating watch trigger: %w", err)
		}
		triggers = append(triggers, w)
	}

	spec, err := cfg.Schedule.Spec()
	if err != nil {
		return nil, nil, err
	}
	if spec != "" {
		s, err := NewScheduled(spec)
		if err != nil {
			return nil, nil, fmt.Errorf("creating scheduled trigger: %w", err)
		}
		triggers = append(triggers, s)
	}

	var webhook *Webhook
	if cfg.Webhook.Path != "" {
		webhook, err = NewWebhook(cfg.Webhook)
		if err != nil {
			return nil, nil, fmt.Errorf("creating webhook trigger: %w", err)
		}
		triggers = append(triggers, webhook)
	}

	return triggers, webhook, nil
}
