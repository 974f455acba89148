package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/sumanthpn07/lazyApply/internal/logger"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 500 * time.Millisecond

// ReloadFunc receives every successfully reloaded configuration.
type ReloadFunc func(*Config) error

// Watcher reloads a config file when it changes on disk.
type Watcher struct {
	path     string
	debounce time.Duration
	onReload ReloadFunc
	log      *zap.SugaredLogger

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher watches path. A zero debounce means DefaultDebounce.
func NewWatcher(path string, debounce time.Duration, onReload ReloadFunc, log *zap.SugaredLogger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{path: path, debounce: debounce, onReload: onReload, log: logger.OrNop(log)}
}

// Run blocks until ctx is cancelled. The parent directory is watched so
// that editors replacing the file by rename are noticed too.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create config watcher")
	}
	defer fw.Close()

	abs, err := filepath.Abs(w.path)
	if err != nil {
		return errors.Wrapf(err, "resolve %s", w.path)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		return errors.Wrapf(err, "watch %s", filepath.Dir(abs))
	}
	w.log.Infow("Watching config", logger.FieldPath, abs)

	defer w.stopTimer()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.schedule()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warnw("Config watcher error", logger.FieldError, err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		// Keep the running configuration.
		w.log.Warnw("Config reload rejected", logger.FieldPath, w.path, logger.FieldError, err)
		return
	}
	if err := w.onReload(cfg); err != nil {
		w.log.Warnw("Config reload callback failed", logger.FieldError, err)
		return
	}
	w.log.Infow("Config reloaded", logger.FieldPath, w.path)
}
