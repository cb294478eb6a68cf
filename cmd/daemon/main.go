// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/farewatch/farewatch/internal/config"
	"github.com/farewatch/farewatch/internal/daemon"
	fwlog "github.com/farewatch/farewatch/internal/log"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "search":
			os.Exit(runSearchCmd(os.Args[2:]))
		case "reparse":
			os.Exit(runReparseCmd(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCmd(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until the config is loaded.
	fwlog.Configure(fwlog.Config{
		Level:   "info",
		Service: "farewatch",
		Version: version,
	})
	logger := fwlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Config path: explicit via --config, otherwise ${FW_DATA_DIR}/config.yaml
	// if it exists.
	effectivePath := strings.TrimSpace(*configPath)
	if effectivePath == "" {
		dataDir := strings.TrimSpace(config.ParseString("FW_DATA", "data"))
		autoPath := filepath.Join(dataDir, "config.yaml")
		if _, err := os.Stat(autoPath); err == nil {
			effectivePath = autoPath
		}
	}

	loader := config.NewLoader(effectivePath, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectivePath).
			Msg("failed to load configuration")
	}

	fwlog.Configure(fwlog.Config{
		Level:   cfg.LogLevel,
		Service: "farewatch",
		Version: cfg.Version,
	})

	if effectivePath != "" {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", effectivePath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.ListenAddr).
		Msg("starting farewatch")

	logger.Info().Msgf("→ Upstream: %s (rate: %.2f req/s)", cfg.Upstream.BaseURL, cfg.Upstream.RatePerSecond)
	logger.Info().Msgf("→ Cache: %s (TTL: %s)", cfg.Cache.Backend, cfg.Cache.TTL)
	logger.Info().Msgf("→ Data dir: %s", cfg.DataDir)
	if cfg.LLM.APIKey != "" {
		logger.Info().Msgf("→ LLM: %s", cfg.LLM.Model)
	} else {
		logger.Warn().Msg("→ LLM: no API key configured, recommendations fall back to rule-based summaries")
	}
	if cfg.APIToken != "" {
		logger.Info().Msg("→ API token: configured")
	} else {
		logger.Warn().
			Str("security", "weak").
			Msg("→ API token: NOT configured (auth disabled). Set FW_API_TOKEN for security.")
	}

	app, err := buildApp(cfg)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.failed").
			Msg("failed to wire application")
	}

	// Hot reload: most settings need a restart; the log level takes effect
	// immediately.
	holder := config.NewHolder(cfg, config.NewLoader(effectivePath, version), func(old, next config.AppConfig) {
		if old.LogLevel != next.LogLevel {
			fwlog.Configure(fwlog.Config{
				Level:   next.LogLevel,
				Service: "farewatch",
				Version: next.Version,
			})
		}
		logger.Info().
			Str("event", "config.reloaded").
			Str("log_level", next.LogLevel).
			Msg("configuration reloaded")
	})
	if err := holder.Watch(ctx); err != nil {
		logger.Warn().
			Err(err).
			Str("event", "config.watch_failed").
			Msg("config hot reload disabled")
	}
	holder.WatchHUP(ctx)

	app.warmup(ctx)

	metricsAddr := ""
	if cfg.MetricsEnabled {
		metricsAddr = strings.TrimSpace(cfg.MetricsAddr)
		if metricsAddr == "" {
			metricsAddr = ":9090"
		}
	}

	mgr, err := daemon.NewManager(daemon.Config{
		ListenAddr:  cfg.ListenAddr,
		MetricsAddr: metricsAddr,
	}, app.server.Router(), promhttp.Handler(), logger)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "manager.creation_failed").
			Msg("failed to create daemon manager")
	}
	mgr.RegisterShutdownHook("store", func(ctx context.Context) error {
		return app.store.Close()
	})
	if app.snapshots != nil {
		mgr.RegisterShutdownHook("snapshots", func(ctx context.Context) error {
			return app.snapshots.Close()
		})
	}

	if err := mgr.Run(ctx); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "manager.failed").
			Msg("daemon failed")
	}

	logger.Info().Msg("server exiting")
}
