package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spanexx/ACTA-sub001/internal/observability"
)

// reloadDebounce coalesces the bursts of filesystem events editors produce
// for a single save.
const reloadDebounce = 200 * time.Millisecond

// Watcher reloads the config file on change and hands the result to a
// callback. A file that fails to load keeps the previous configuration; the
// daemon never runs on a half-parsed document.
type Watcher struct {
	path     string
	onChange func(*Config)
	logger   *observability.Logger

	fsw  *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher creates a watcher for the given config path.
func NewWatcher(path string, onChange func(*Config), logger *observability.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file: editors replace files via rename
	// and a file watch would go stale after the first save.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		onChange: onChange,
		logger:   logger,
		fsw:      fsw,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				timerC = timer.C
			} else {
				timer.Reset(reloadDebounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn(context.Background(), "config watcher error", "error", err)
			}

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	ctx := context.Background()
	cfg, err := Load(w.path)
	if err != nil {
		if w.logger != nil {
			w.logger.Warn(ctx, "config reload failed, keeping previous configuration",
				"path", w.path, "error", err)
		}
		return
	}
	if w.logger != nil {
		w.logger.Info(ctx, "config reloaded", "path", w.path)
	}
	w.onChange(cfg)
}
