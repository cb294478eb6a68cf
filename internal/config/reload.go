// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/farewatch/farewatch/internal/log"
	"github.com/fsnotify/fsnotify"
)

// Holder keeps the current configuration and supports hot reload from the
// YAML file. Only knobs that are safe to change at runtime are applied by
// consumers; the holder itself just swaps the snapshot.
type Holder struct {
	mu     sync.RWMutex
	cfg    AppConfig
	loader *Loader
	onSwap func(old, new AppConfig)
}

// NewHolder creates a holder seeded with cfg.
func NewHolder(cfg AppConfig, loader *Loader, onSwap func(old, new AppConfig)) *Holder {
	return &Holder{cfg: cfg, loader: loader, onSwap: onSwap}
}

// Current returns the active configuration.
func (h *Holder) Current() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Reload re-resolves the configuration and swaps it in when valid.
func (h *Holder) Reload() error {
	cfg, err := h.loader.Load()
	if err != nil {
		return err
	}
	h.mu.Lock()
	old := h.cfg
	h.cfg = cfg
	h.mu.Unlock()
	if h.onSwap != nil {
		h.onSwap(old, cfg)
	}
	return nil
}

// WatchHUP reloads the configuration when the process receives SIGHUP.
// Complements Watch for setups where the config file lives on a mount
// fsnotify cannot observe.
func (h *Holder) WatchHUP(ctx context.Context) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)

	logger := log.WithComponent("config")
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				if err := h.Reload(); err != nil {
					logger.Warn().Err(err).
						Str("event", "config.reload_failed").
						Str("trigger", "sighup").
						Msg("config reload failed, keeping previous configuration")
					continue
				}
				logger.Info().
					Str("event", "config.reloaded").
					Str("trigger", "sighup").
					Msg("configuration reloaded")
			}
		}
	}()
}

// Watch reloads the configuration whenever the config file changes. It
// returns immediately when no file path is configured. Events are debounced
// because editors emit bursts of writes.
func (h *Holder) Watch(ctx context.Context) error {
	if h.loader == nil || h.loader.filePath == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	logger := log.WithComponent("config")
	// Watch the directory: most editors replace the file, which drops the
	// watch on the file itself.
	dir := filepath.Dir(h.loader.filePath)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}

	go func() {
		defer func() { _ = watcher.Close() }()
		var timer *time.Timer
		target := filepath.Clean(h.loader.filePath)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(250*time.Millisecond, func() {
					if err := h.Reload(); err != nil {
						logger.Warn().Err(err).
							Str("event", "config.reload_failed").
							Str("path", target).
							Msg("config reload failed, keeping previous configuration")
						return
					}
					logger.Info().
						Str("event", "config.reloaded").
						Str("path", target).
						Msg("configuration reloaded")
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Msg("config watcher error")
			}
		}
	}()
	return nil
}
