package nexusconfig

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors one or more files for out-of-band edits (an operator
// hand-editing servers.json or roles.json while the hub is running) and
// debounces bursts of writes into a single reload call per file. Grounded
// on pkg/reload's directory-watch approach: editors atomically save by
// renaming a temp file over the target, which a direct file watch misses,
// so each target's parent directory is watched instead.
type Watcher struct {
	paths    []string
	onChange func(path string) error
	logger   *slog.Logger
	debounce time.Duration
}

// NewWatcher builds a Watcher over paths. onChange is called, once per
// debounce window, with the path that changed.
func NewWatcher(paths []string, onChange func(path string) error) *Watcher {
	return &Watcher{
		paths:    paths,
		onChange: onChange,
		logger:   slog.Default(),
		debounce: 300 * time.Millisecond,
	}
}

func (w *Watcher) SetLogger(logger *slog.Logger) {
	if logger != nil {
		w.logger = logger
	}
}

func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Watch blocks until ctx is cancelled, triggering onChange on debounced
// write/create events for any of the watched paths.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	watchedDirs := make(map[string]bool)
	targets := make(map[string]bool, len(w.paths))
	for _, path := range w.paths {
		targets[filepath.Base(path)] = true
		dir := filepath.Dir(path)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return err
		}
		watchedDirs[dir] = true
	}

	w.logger.Info("watching config files for changes", "paths", w.paths)

	timers := make(map[string]*time.Timer)
	fired := make(chan string, len(w.paths))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopping config watcher")
			for _, t := range timers {
				t.Stop()
			}
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(event.Name)
			if !targets[name] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if t, exists := timers[name]; exists {
				t.Stop()
			}
			path := event.Name
			timers[name] = time.AfterFunc(w.debounce, func() {
				fired <- path
			})

		case path := <-fired:
			w.logger.Info("config file changed, reloading", "path", path)
			if err := w.onChange(path); err != nil {
				w.logger.Error("reload failed", "path", path, "error", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}
