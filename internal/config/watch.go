package config

import (
	"context"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/fleetwatch/buswatch/internal/logger"
)

// Hot is an atomically-swappable view of the currently active hot-reloadable
// tunables, updated in place by Watch on every file-change event.
type Hot struct {
	ptr atomic.Pointer[HotReloadable]
}

// NewHot creates a Hot seeded with h.
func NewHot(h HotReloadable) *Hot {
	hot := &Hot{}
	hot.ptr.Store(&h)
	return hot
}

// Load returns the currently active tunables.
func (h *Hot) Load() HotReloadable {
	return *h.ptr.Load()
}

func (h *Hot) store(v HotReloadable) {
	h.ptr.Store(&v)
}

// Watch re-loads path on every fsnotify write event and republishes the
// hot-reloadable subset of the result into hot. It returns immediately if
// path is empty (nothing to watch). It runs until ctx is cancelled,
// mirroring the per-component cancellation the rest of this server uses.
func Watch(ctx context.Context, path string, hot *Hot) error {
	if path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		// A config file that doesn't exist yet simply never hot-reloads.
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				logger.Warn("config reload failed", "path", path, "err", err)
				continue
			}
			hot.store(cfg.Hot())
			logger.Info("config reloaded", "path", path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watch error", "err", err)
		}
	}
}
