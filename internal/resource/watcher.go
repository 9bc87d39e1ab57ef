package resource

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Forgetter drops a memoized key. *Cache satisfies it.
type Forgetter interface {
	Forget(key string)
}

// AssetWatcher forgets cached assets whose files change on disk, so the next
// model build reads the new file.
type AssetWatcher struct {
	cache    Forgetter
	paths    map[string]string // cleaned absolute path -> cache key
	debounce time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewAssetWatcher watches the given local asset paths. Keys are used verbatim
// as cache keys; URLs are ignored.
func NewAssetWatcher(cache Forgetter, keys []string, logger *slog.Logger) *AssetWatcher {
	w := &AssetWatcher{
		cache:    cache,
		paths:    make(map[string]string),
		debounce: 100 * time.Millisecond,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
	}
	for _, k := range keys {
		if !IsLocalPath(k) {
			continue
		}
		abs, err := filepath.Abs(k)
		if err != nil {
			continue
		}
		w.paths[filepath.Clean(abs)] = k
	}
	return w
}

// Run blocks until ctx is cancelled, forgetting cache entries on change.
func (w *AssetWatcher) Run(ctx context.Context) error {
	if len(w.paths) == 0 {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating asset watcher: %w", err)
	}
	defer watcher.Close()

	// Watch directories: editors and installers replace files by rename.
	dirs := make(map[string]bool)
	for p := range w.paths {
		dirs[filepath.Dir(p)] = true
	}
	for d := range dirs {
		if err := watcher.Add(d); err != nil {
			return fmt.Errorf("watching %s: %w", d, err)
		}
	}
	w.logger.Info("asset watcher started", "files", len(w.paths), "dirs", len(dirs))

	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			key, watched := w.paths[filepath.Clean(event.Name)]
			if !watched {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule(key)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("asset watcher error", "error", err)
		}
	}
}

func (w *AssetWatcher) schedule(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[key]; ok {
		t.Stop()
	}
	w.timers[key] = time.AfterFunc(w.debounce, func() {
		w.cache.Forget(key)
		w.logger.Info("asset changed, cache entry dropped", "key", key)
	})
}

func (w *AssetWatcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for k, t := range w.timers {
		t.Stop()
		delete(w.timers, k)
	}
}
