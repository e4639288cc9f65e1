package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/openfroyo/deepclone/pkg/classify"
	"github.com/openfroyo/deepclone/pkg/policy"
	"github.com/openfroyo/deepclone/pkg/telemetry"
	"github.com/rs/zerolog"
)

// DefaultReloadDelay is how long the watcher waits for writes to settle.
const DefaultReloadDelay = 500 * time.Millisecond

// Reload is handed to the watcher callback after every successful reload.
type Reload struct {
	Config   *Config
	Registry *classify.Registry
	Policies *policy.Engine
}

// Watcher reloads configuration files when they change and hands the
// rebuilt registry to a callback, typically clone.Cloner.SetRegistry. The
// policy files the configuration lists are watched as well.
type Watcher struct {
	paths    []string
	opts     BuildOptions
	onReload func(Reload)
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
	delay    time.Duration

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	timer    *time.Timer
	policies []string
}

// NewWatcher creates a watcher for the given configuration files or
// directories.
func NewWatcher(paths []string, opts BuildOptions, onReload func(Reload)) *Watcher {
	if opts.Loader == nil {
		opts.Loader = policy.NewLoader(opts.Logger)
	}
	return &Watcher{
		paths:    paths,
		opts:     opts,
		onReload: onReload,
		logger:   opts.Logger.With().Str("component", "config-watcher").Logger(),
		metrics:  opts.Metrics,
		delay:    DefaultReloadDelay,
	}
}

// Start begins watching. Directories holding the watched files are watched
// so that editors replacing files by rename are seen. Watching stops when
// ctx is done or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	dirs := make(map[string]struct{})
	for _, path := range w.paths {
		info, err := os.Stat(path)
		if err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if info.IsDir() {
			dirs[path] = struct{}{}
		} else {
			dirs[filepath.Dir(path)] = struct{}{}
		}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	// An invalid configuration is reported by the first reload; policies
	// are watched once it loads.
	if cfg, err := Load(ctx, w.paths...); err == nil {
		w.watchPolicies(cfg.Policies)
	}

	go w.processEvents(ctx, watcher)

	w.logger.Info().
		Int("paths", len(w.paths)).
		Int("policies", len(w.policyPaths())).
		Msg("Started watching configuration")

	return nil
}

// watchPolicies makes paths the watched policy set and adds the directories
// holding them. Directories no longer listed stay watched; their events are
// filtered out by relevant.
func (w *Watcher) watchPolicies(paths []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.policies = append([]string(nil), paths...)
	if w.watcher == nil || len(paths) == 0 {
		return
	}

	dirs, err := policy.Dirs(paths)
	if err != nil {
		w.logger.Warn().Err(err).Msg("Failed to list policy directories")
		return
	}
	for _, dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			w.logger.Warn().Err(err).Str("dir", dir).Msg("Failed to watch policy directory")
		}
	}
}

func (w *Watcher) policyPaths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.policies
}

// processEvents debounces file events into reloads.
func (w *Watcher) processEvents(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			_ = w.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 || !w.relevant(event.Name) {
				continue
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Watched file changed")

			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.timer = time.AfterFunc(w.delay, func() {
				if err := w.Reload(ctx); err != nil {
					w.logger.Error().Err(err).Msg("Failed to reload configuration")
				}
			})
			w.mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// relevant reports whether a changed file belongs to the watched set: a
// configuration file under a configuration path, or a policy file under a
// policy path of the current configuration.
func (w *Watcher) relevant(name string) bool {
	if FormatOf(name) != "" && underAny(w.paths, name) {
		return true
	}
	return policy.IsPolicyFile(name) && underAny(w.policyPaths(), name)
}

func underAny(paths []string, name string) bool {
	name = absPath(name)
	for _, path := range paths {
		path = absPath(path)
		if path == name {
			return true
		}
		rel, err := filepath.Rel(path, name)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// absPath makes relative paths comparable with the absolute ones events may
// carry.
func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Reload parses the configuration, rebuilds the registry and calls the
// callback. A failed reload keeps the previous registry in place.
func (w *Watcher) Reload(ctx context.Context) error {
	cfg, err := Load(ctx, w.paths...)
	if err != nil {
		w.metrics.RecordConfigReload("invalid")
		return err
	}

	registry, engine, err := BuildRegistry(ctx, cfg, w.opts)
	if err != nil {
		w.metrics.RecordConfigReload("error")
		return err
	}

	w.watchPolicies(cfg.Policies)
	w.metrics.RecordConfigReload("ok")
	w.logger.Info().
		Int("ignore", len(cfg.Ignore)).
		Int("share", len(cfg.Share)).
		Int("policies", len(cfg.Policies)).
		Msg("Configuration reloaded")

	if w.onReload != nil {
		w.onReload(Reload{Config: cfg, Registry: registry, Policies: engine})
	}
	return nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	w.watcher = nil
	return err
}
