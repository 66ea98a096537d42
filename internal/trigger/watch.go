// internal/trigger/watch.go
package trigger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/colebrumley/sitegen/internal/config"
)

// ErrAlreadyStarted is returned when Start is called on a running watcher.
var ErrAlreadyStarted = errors.New("trigger already started")

// WatchOptions tunes which paths a Watch reacts to.
type WatchOptions struct {
	// Skip lists directories that are never watched, such as the output dir.
	Skip []string
	// ConfigFile is watched even when it lives outside the source tree.
	ConfigFile string
	Logger     *slog.Logger
}

// Watch rebuilds when files under the source tree change. Bursts of changes
// are debounced into a single event.
type Watch struct {
	root       string
	skip       []string
	configFile string
	ignore     []string
	debounce   time.Duration
	logger     *slog.Logger

	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	started  bool
	timer    *time.Timer
	changed  map[string]bool
	stopOnce sync.Once
	stopErr  error
}

// NewWatch creates a recursive watcher for root
func NewWatch(root string, cfg config.WatchConfig, opts WatchOptions) (*Watch, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	root = filepath.Clean(root)
	skip := make([]string, 0, len(opts.Skip))
	for _, s := range opts.Skip {
		s = filepath.Clean(s)
		if isUnder(s, root) {
			// skipping an ancestor of root would silence everything
			continue
		}
		skip = append(skip, s)
	}

	return &Watch{
		root:       root,
		skip:       skip,
		configFile: opts.ConfigFile,
		ignore:     cfg.Ignore,
		debounce:   time.Duration(cfg.DebounceMS) * time.Millisecond,
		logger:     logger,
		watcher:    watcher,
		changed:    make(map[string]bool),
	}, nil
}

func (w *Watch) Name() string {
	return TypeWatch
}

func (w *Watch) Start(ctx context.Context, events chan<- Event) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.started = true
	w.mu.Unlock()

	if err := w.addTree(w.root); err != nil {
		return err
	}
	if w.configFile != "" {
		dir := filepath.Dir(w.configFile)
		if !isUnder(w.root, dir) {
			if err := w.watcher.Add(dir); err != nil {
				return fmt.Errorf("watching config directory: %w", err)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event, events)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// Stop cancels any pending event and closes the watcher. Safe to call twice.
func (w *Watch) Stop() error {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		w.mu.Unlock()
		w.stopErr = w.watcher.Close()
	})
	return w.stopErr
}

// addTree watches dir and every directory below it, except hidden and
// skipped ones.
func (w *Watch) addTree(dir string) error {
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p != dir && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && w.skipDir(p) {
			return filepath.SkipDir
		}
		return w.watcher.Add(p)
	})
	if err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	return nil
}

func (w *Watch) skipDir(p string) bool {
	return strings.HasPrefix(filepath.Base(p), ".") || slices.Contains(w.skip, filepath.Clean(p))
}

func (w *Watch) handleEvent(ev fsnotify.Event, events chan<- Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}

	isConfig := w.configFile != "" && ev.Name == w.configFile
	if !isConfig {
		if !isUnder(w.root, ev.Name) || w.ignored(ev.Name) {
			return
		}
	}

	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if w.skipDir(ev.Name) {
				return
			}
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("watching new directory", "path", ev.Name, "error", err)
			}
		}
	}

	w.logger.Debug("source changed", "path", ev.Name, "op", ev.Op.String())
	w.schedule(ev.Name, events)
}

// ignored reports whether path, or any directory between root and path,
// matches an ignore pattern or sits in a skipped directory.
func (w *Watch) ignored(path string) bool {
	for _, s := range w.skip {
		if isUnder(s, path) {
			return true
		}
	}

	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return true
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
		for _, pattern := range w.ignore {
			if matched, _ := filepath.Match(pattern, part); matched {
				return true
			}
		}
	}
	return false
}

func (w *Watch) schedule(path string, events chan<- Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.changed[path] = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.flush(events)
	})
}

func (w *Watch) flush(events chan<- Event) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.changed))
	for p := range w.changed {
		paths = append(paths, p)
	}
	w.changed = make(map[string]bool)
	w.timer = nil
	w.mu.Unlock()

	if len(paths) == 0 {
		return
	}
	slices.Sort(paths)

	configChanged := w.configFile != "" && slices.Contains(paths, w.configFile)
	detail := fmt.Sprintf("%d paths changed", len(paths))
	if len(paths) == 1 {
		detail = paths[0]
		if rel, err := filepath.Rel(w.root, paths[0]); err == nil && !strings.HasPrefix(rel, "..") {
			detail = rel
		}
	}

	send(events, Event{
		Type:   TypeWatch,
		Detail: detail,
		Data: map[string]any{
			"paths":          paths,
			"config_changed": configChanged,
		},
	})
}

func isUnder(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
