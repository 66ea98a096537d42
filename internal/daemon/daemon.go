// internal/daemon/daemon.go
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/colebrumley/sitegen/internal/config"
	"github.com/colebrumley/sitegen/internal/filters"
	"github.com/colebrumley/sitegen/internal/logging"
	"github.com/colebrumley/sitegen/internal/security"
	"github.com/colebrumley/sitegen/internal/site"
	"github.com/colebrumley/sitegen/internal/state"
	"github.com/colebrumley/sitegen/internal/template"
	"github.com/colebrumley/sitegen/internal/trigger"
)

// eventBuffer bounds queued rebuild requests. Requests beyond it are dropped,
// which is safe because a queued request already covers them.
const eventBuffer = 16

// Daemon rebuilds the site whenever a trigger fires and serves status over HTTP
type Daemon struct {
	configPath string
	config     *config.Config
	builder    *site.Builder
	triggers   []trigger.Trigger
	webhook    *trigger.Webhook
	manual     *trigger.Manual
	events     chan trigger.Event
	logger     *slog.Logger
	logCloser  io.Closer
	httpServer *http.Server
	stateDB    *state.DB
	startTime  time.Time
	building   atomic.Bool
	lastBuild  *state.BuildRecord

	mu             sync.RWMutex
	cancelTriggers context.CancelFunc
	triggerWG      sync.WaitGroup
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithLogger sets the logger instead of building one from the config.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Daemon) {
		d.logger = logger
	}
}

// New creates a new daemon instance
func New(configPath string, opts ...Option) *Daemon {
	d := &Daemon{
		configPath: configPath,
		events:     make(chan trigger.Event, eventBuffer),
		manual:     trigger.NewManual(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run starts the daemon and blocks until context is cancelled
func (d *Daemon) Run(ctx context.Context) error {
	d.startTime = time.Now()

	if err := d.loadConfig(); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	d.initLogger()

	d.logger.Info("starting daemon",
		"config", d.configPath,
		"source", d.config.Build.Source,
		"output", d.config.Build.Output,
	)

	if err := security.CheckNotWorldWritable(d.configPath); err != nil {
		d.logger.Warn("config file has unsafe permissions", "error", err)
	}

	if err := d.initStateDB(); err != nil {
		d.logger.Warn("failed to initialize state database, history will not be recorded", "error", err)
	}

	d.setupBuilder()

	if err := d.startTriggers(ctx, true); err != nil {
		d.shutdown()
		return fmt.Errorf("initializing triggers: %w", err)
	}

	if d.config.Server.Port > 0 {
		d.startHTTPServer()
	}

	d.logger.Info("daemon started", "triggers", len(d.triggers))

	// Main event loop. Builds run one at a time; events that arrive during a
	// build are coalesced into the next one.
	for {
		select {
		case event := <-d.events:
			merged, configChanged := coalesce(event, d.events)
			if configChanged {
				d.reloadConfig(ctx)
			}
			d.handleEvent(ctx, merged)
		case <-ctx.Done():
			d.logger.Info("daemon stopping")
			return d.shutdown()
		}
	}
}

// BuildOnce loads the config and runs a single build, recording it in
// history when enabled. Used by the CLI.
func (d *Daemon) BuildOnce(ctx context.Context, detail string) (*site.Result, error) {
	if err := d.loadConfig(); err != nil {
		return nil, err
	}
	d.initLogger()
	defer d.closeLog()

	if err := d.initStateDB(); err != nil {
		d.logger.Warn("failed to initialize state database, history will not be recorded", "error", err)
	}
	defer func() {
		if d.stateDB != nil {
			d.stateDB.Close()
		}
	}()

	d.setupBuilder()
	return d.build(ctx, trigger.Event{
		Type:      trigger.TypeManual,
		Timestamp: time.Now(),
		Detail:    detail,
	})
}

func (d *Daemon) loadConfig() error {
	cfg, err := config.Load(d.configPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	d.config = cfg
	return nil
}

// initLogger builds the logger from config unless one was injected. Logs go
// to the rotating file when configured, otherwise stderr.
func (d *Daemon) initLogger() {
	if d.logger != nil {
		return
	}

	var w io.Writer = os.Stderr
	var fileErr error
	if path := d.config.Logging.File; path != "" {
		maxSize := int64(d.config.Logging.MaxSizeMB) * 1024 * 1024
		rw, err := logging.NewRotatingWriter(path, maxSize, 0)
		if err != nil {
			fileErr = err
		} else {
			w = rw
			d.logCloser = rw
		}
	}

	d.logger = logging.NewLogger(d.config.Logging.Format, d.config.Logging.Level, w)
	if fileErr != nil {
		d.logger.Warn("failed to open log file, using stderr", "error", fileErr)
	}
}

func (d *Daemon) closeLog() {
	if d.logCloser != nil {
		d.logCloser.Close()
		d.logCloser = nil
	}
}

// initStateDB opens the history database and prunes old records.
func (d *Daemon) initStateDB() error {
	if !d.config.History.Enabled {
		return nil
	}
	db, err := state.Open(d.config.History.Path)
	if err != nil {
		return fmt.Errorf("opening state database: %w", err)
	}
	d.stateDB = db

	if deleted, err := db.Cleanup(d.config.History.RetentionDays); err != nil {
		d.logger.Warn("history cleanup failed", "error", err)
	} else if deleted > 0 {
		d.logger.Info("cleaned up old build records", "deleted", deleted)
	}

	if last, err := db.LastBuild(); err == nil {
		d.lastBuild = last
	}
	return nil
}

func (d *Daemon) setupBuilder() {
	registry := filters.Standard(d.logger)
	engine := template.NewEngine(registry,
		template.WithStrictVariables(d.config.Build.StrictVariables),
		template.WithLogger(d.logger),
	)

	d.mu.Lock()
	d.builder = site.NewBuilder(d.config, engine, d.logger)
	d.mu.Unlock()
}

// startTriggers creates triggers from the current config and starts them.
// The startup trigger only runs on the first call.
func (d *Daemon) startTriggers(ctx context.Context, initial bool) error {
	triggers, webhook, err := trigger.FromConfig(d.config, d.logger)
	if err != nil {
		return err
	}
	if !initial {
		triggers = triggers[1:]
	}
	triggers = append(triggers, d.manual)

	tctx, cancel := context.WithCancel(ctx)

	d.mu.Lock()
	d.triggers = triggers
	d.webhook = webhook
	d.cancelTriggers = cancel
	d.mu.Unlock()

	for _, t := range triggers {
		d.triggerWG.Add(1)
		go func(t trigger.Trigger) {
			defer d.triggerWG.Done()
			if err := t.Start(tctx, d.events); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Error("trigger error", "trigger", t.Name(), "error", err)
			}
		}(t)
	}
	return nil
}

func (d *Daemon) stopTriggers() {
	d.mu.Lock()
	triggers := d.triggers
	cancel := d.cancelTriggers
	d.triggers = nil
	d.cancelTriggers = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, t := range triggers {
		if err := t.Stop(); err != nil {
			d.logger.Warn("stopping trigger", "trigger", t.Name(), "error", err)
		}
	}
	d.triggerWG.Wait()
}

// reloadConfig re-reads the config file and restarts triggers. An invalid
// config is logged and the previous one stays in effect.
func (d *Daemon) reloadConfig(ctx context.Context) {
	previous := d.config
	if err := d.loadConfig(); err != nil {
		d.logger.Error("config reload failed, keeping previous config", "error", err)
		return
	}
	d.logger.Info("config reloaded", "config", d.configPath)

	if previous.Server != d.config.Server {
		d.logger.Warn("server settings changed; restart the daemon to apply them")
	}
	if previous.History != d.config.History {
		d.logger.Warn("history settings changed; restart the daemon to apply them")
	}

	d.stopTriggers()
	d.setupBuilder()
	if err := d.startTriggers(ctx, false); err != nil {
		d.logger.Error("restarting triggers after reload", "error", err)
	}
}

// coalesce merges first with every event already queued.
func coalesce(first trigger.Event, pending <-chan trigger.Event) (trigger.Event, bool) {
	merged := first
	configChanged := eventChangedConfig(first)
	extra := 0

	for {
		select {
		case ev := <-pending:
			extra++
			if eventChangedConfig(ev) {
				configChanged = true
			}
		default:
			if extra > 0 {
				merged.Detail = fmt.Sprintf("%s (+%d more)", first.Detail, extra)
			}
			return merged, configChanged
		}
	}
}

func eventChangedConfig(ev trigger.Event) bool {
	changed, _ := ev.Data["config_changed"].(bool)
	return changed
}

func (d *Daemon) handleEvent(ctx context.Context, event trigger.Event) {
	logger := logging.WithTrigger(d.logger, event.Type)
	logger.Info("build triggered", "detail", event.Detail)

	if _, err := d.build(ctx, event); err != nil {
		logger.Error("build failed", "error", err)
	}
}

// build runs one build and records its outcome.
func (d *Daemon) build(ctx context.Context, event trigger.Event) (*site.Result, error) {
	d.mu.RLock()
	builder := d.builder
	d.mu.RUnlock()

	d.building.Store(true)
	defer d.building.Store(false)

	startedAt := time.Now()
	result, err := builder.Build(ctx)
	finishedAt := time.Now()

	rec := state.BuildRecord{
		TriggerType:   event.Type,
		TriggerDetail: event.Detail,
		State:         buildState(err),
		StartedAt:     startedAt,
		FinishedAt:    finishedAt,
		DurationMs:    finishedAt.Sub(startedAt).Milliseconds(),
	}
	if result != nil {
		rec.PagesRendered = result.Pages
		rec.FilesCopied = result.Copied
	}
	if err != nil {
		rec.Error = err.Error()
	}
	d.recordBuild(rec)

	return result, err
}

func buildState(err error) string {
	switch {
	case err == nil:
		return state.StateSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return state.StateCancelled
	default:
		return state.StateFailure
	}
}

func (d *Daemon) recordBuild(rec state.BuildRecord) {
	d.mu.Lock()
	d.lastBuild = &rec
	d.mu.Unlock()

	if d.stateDB == nil {
		return
	}
	id, err := d.stateDB.RecordBuild(rec)
	if err != nil {
		d.logger.Warn("failed to record build", "error", err)
		return
	}
	d.mu.Lock()
	d.lastBuild.ID = id
	d.mu.Unlock()
}

func (d *Daemon) shutdown() error {
	d.stopTriggers()

	d.mu.RLock()
	srv := d.httpServer
	d.mu.RUnlock()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		srv.Shutdown(shutdownCtx)
		cancel()
	}

	if d.stateDB != nil {
		d.stateDB.Close()
	}
	d.closeLog()
	return nil
}
