// SPDX-License-Identifier: MIT

// Package daemon owns the process lifecycle: it runs the API and
// metrics servers and tears everything down in order on shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ShutdownHook performs cleanup during graceful shutdown. Hooks run in
// reverse registration order.
type ShutdownHook func(ctx context.Context) error

// Config holds the server endpoints and timeouts.
type Config struct {
	ListenAddr      string
	MetricsAddr     string // empty disables the metrics server
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 15 * time.Second
	}
}

// Manager runs the servers and blocks until the context is canceled or
// a server fails.
type Manager struct {
	cfg            Config
	apiHandler     http.Handler
	metricsHandler http.Handler
	logger         zerolog.Logger

	mu       sync.Mutex
	started  bool
	stopping bool
	hooks    []namedHook

	apiServer     *http.Server
	metricsServer *http.Server
}

type namedHook struct {
	name string
	hook ShutdownHook
}

// NewManager creates a manager for the given handlers. metricsHandler
// may be nil when metrics are disabled.
func NewManager(cfg Config, apiHandler, metricsHandler http.Handler, logger zerolog.Logger) (*Manager, error) {
	if apiHandler == nil {
		return nil, fmt.Errorf("api handler is nil")
	}
	cfg.applyDefaults()
	return &Manager{
		cfg:            cfg,
		apiHandler:     apiHandler,
		metricsHandler: metricsHandler,
		logger:         logger.With().Str("component", "daemon").Logger(),
	}, nil
}

// RegisterShutdownHook adds a named cleanup step. Hooks run LIFO.
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, hook: hook})
}

// Run starts the servers and blocks until ctx is canceled or a server
// fails, then shuts everything down.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("daemon already started")
	}
	m.started = true
	m.mu.Unlock()

	errChan := make(chan error, 2)

	if m.cfg.MetricsAddr != "" && m.metricsHandler != nil {
		m.metricsServer = &http.Server{
			Addr:         m.cfg.MetricsAddr,
			Handler:      m.metricsHandler,
			ReadTimeout:  m.cfg.ReadTimeout,
			WriteTimeout: m.cfg.WriteTimeout,
		}
		go func() {
			m.logger.Info().
				Str("event", "daemon.metrics.start").
				Str("addr", m.cfg.MetricsAddr).
				Msg("starting metrics server")
			if err := m.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	m.apiServer = &http.Server{
		Addr:         m.cfg.ListenAddr,
		Handler:      m.apiHandler,
		ReadTimeout:  m.cfg.ReadTimeout,
		WriteTimeout: m.cfg.WriteTimeout,
	}
	go func() {
		m.logger.Info().
			Str("event", "daemon.api.start").
			Str("addr", m.cfg.ListenAddr).
			Msg("starting api server")
		if err := m.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("api server: %w", err)
		}
	}()

	var runErr error
	select {
	case err := <-errChan:
		m.logger.Error().Err(err).Str("event", "daemon.server_error").Msg("server failed, shutting down")
		runErr = err
	case <-ctx.Done():
		m.logger.Info().Str("event", "daemon.signal").Msg("shutdown signal received")
	}

	// The parent context may already be canceled; shutdown gets its own
	// bounded deadline.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
	defer cancel()
	if err := m.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Shutdown stops the servers and runs the hooks in LIFO order.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	m.stopping = true
	hooks := make([]namedHook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	var firstErr error

	if m.apiServer != nil {
		if err := m.apiServer.Shutdown(ctx); err != nil {
			m.logger.Error().Err(err).Str("event", "daemon.api.shutdown_error").Msg("api server shutdown failed")
			firstErr = err
		}
	}
	if m.metricsServer != nil {
		if err := m.metricsServer.Shutdown(ctx); err != nil {
			m.logger.Error().Err(err).Str("event", "daemon.metrics.shutdown_error").Msg("metrics server shutdown failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.hook(ctx); err != nil {
			m.logger.Error().Err(err).
				Str("event", "daemon.hook_error").
				Str("hook", h.name).
				Msg("shutdown hook failed")
			if firstErr == nil {
				firstErr = err
			}
		} else {
			m.logger.Debug().
				Str("event", "daemon.hook_done").
				Str("hook", h.name).
				Msg("shutdown hook completed")
		}
	}

	m.logger.Info().Str("event", "daemon.stopped").Msg("daemon stopped")
	return firstErr
}
