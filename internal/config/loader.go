// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/farewatch/farewatch/internal/log"
	"github.com/farewatch/farewatch/internal/metrics"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Loader resolves the application configuration with the precedence
// ENV > .env file > YAML file > defaults.
type Loader struct {
	filePath string
	version  string
}

// NewLoader creates a loader. filePath may be empty (no YAML file).
func NewLoader(filePath, version string) *Loader {
	return &Loader{filePath: filePath, version: version}
}

// Load resolves the configuration and validates it.
func (l *Loader) Load() (AppConfig, error) {
	logger := log.WithComponent("config")

	// .env first so the env layer below sees its variables. Real process
	// environment always wins; godotenv.Load never overwrites.
	LoadDotenv()

	cfg := Defaults()

	if l.filePath != "" {
		if err := mergeFile(&cfg, l.filePath); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return AppConfig{}, fmt.Errorf("config file %s: %w", l.filePath, err)
			}
			logger.Debug().Str("path", l.filePath).Msg("config file not found, skipping")
		} else {
			logger.Info().Str("path", l.filePath).Msg("merged config file")
		}
	}

	mergeEnv(&cfg)
	cfg.Version = l.version

	if err := cfg.Validate(); err != nil {
		metrics.IncConfigValidationError()
		return AppConfig{}, err
	}
	return cfg, nil
}

func mergeFile(cfg *AppConfig, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// mergeEnv overlays FW_* environment variables onto cfg.
func mergeEnv(cfg *AppConfig) {
	cfg.ListenAddr = ParseString("FW_LISTEN", cfg.ListenAddr)
	cfg.MetricsEnabled = ParseBool("FW_METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.MetricsAddr = ParseString("FW_METRICS_ADDR", cfg.MetricsAddr)
	cfg.DataDir = ParseString("FW_DATA", cfg.DataDir)
	cfg.LogLevel = ParseString("FW_LOG_LEVEL", cfg.LogLevel)
	cfg.APIToken = ParseString("FW_API_TOKEN", cfg.APIToken)
	if origins := ParseString("FW_ALLOWED_ORIGINS", ""); origins != "" {
		cfg.AllowedOrigins = splitCSV(origins)
	}

	cfg.RateLimitEnabled = ParseBool("FW_RATE_LIMIT_ENABLED", cfg.RateLimitEnabled)
	cfg.RateLimitPerMin = ParseInt("FW_RATE_LIMIT_PER_MIN", cfg.RateLimitPerMin)
	cfg.RateLimitBurst = ParseInt("FW_RATE_LIMIT_BURST", cfg.RateLimitBurst)

	cfg.Upstream.BaseURL = ParseString("FW_UPSTREAM_BASE", cfg.Upstream.BaseURL)
	cfg.Upstream.Timeout = ParseDuration("FW_UPSTREAM_TIMEOUT", cfg.Upstream.Timeout)
	cfg.Upstream.UserAgent = ParseString("FW_UPSTREAM_USER_AGENT", cfg.Upstream.UserAgent)
	cfg.Upstream.Retries = ParseInt("FW_UPSTREAM_RETRIES", cfg.Upstream.Retries)
	cfg.Upstream.RatePerSecond = ParseFloat("FW_UPSTREAM_RATE", cfg.Upstream.RatePerSecond)
	cfg.Upstream.ProxyServer = ParseString("FW_PROXY_SERVER", cfg.Upstream.ProxyServer)
	cfg.Upstream.ProxyUsername = ParseString("FW_PROXY_USERNAME", cfg.Upstream.ProxyUsername)
	cfg.Upstream.ProxyPassword = ParseString("FW_PROXY_PASSWORD", cfg.Upstream.ProxyPassword)
	cfg.Upstream.BreakerThreshold = ParseInt("FW_BREAKER_THRESHOLD", cfg.Upstream.BreakerThreshold)
	cfg.Upstream.BreakerReset = ParseDuration("FW_BREAKER_RESET", cfg.Upstream.BreakerReset)

	cfg.LLM.BaseURL = ParseString("FW_LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.Model = ParseString("FW_LLM_MODEL", cfg.LLM.Model)
	// TOGETHER_API_KEY is honored for drop-in compatibility with existing
	// .env files.
	cfg.LLM.APIKey = ParseString("FW_LLM_API_KEY", ParseString("TOGETHER_API_KEY", cfg.LLM.APIKey))
	cfg.LLM.Temperature = ParseFloat("FW_LLM_TEMPERATURE", cfg.LLM.Temperature)
	cfg.LLM.MaxTokens = ParseInt("FW_LLM_MAX_TOKENS", cfg.LLM.MaxTokens)
	cfg.LLM.Timeout = ParseDuration("FW_LLM_TIMEOUT", cfg.LLM.Timeout)
	cfg.LLM.Retries = ParseInt("FW_LLM_RETRIES", cfg.LLM.Retries)

	cfg.Cache.Backend = ParseString("FW_CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Cache.TTL = ParseDuration("FW_CACHE_TTL", cfg.Cache.TTL)
	cfg.Cache.RedisAddr = ParseString("FW_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = ParseString("FW_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = ParseInt("FW_REDIS_DB", cfg.Cache.RedisDB)

	cfg.Snapshot.Enabled = ParseBool("FW_SNAPSHOT_ENABLED", cfg.Snapshot.Enabled)
	cfg.Snapshot.TTL = ParseDuration("FW_SNAPSHOT_TTL", cfg.Snapshot.TTL)

	cfg.WarmupSearch = ParseString("FW_WARMUP_SEARCH", cfg.WarmupSearch)
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		v := strings.TrimSpace(p)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

// LoadDotenv loads the .env file named by FW_ENV_FILE (default ".env") into
// the process environment without overwriting variables that are already
// set. A missing file is not an error.
func LoadDotenv() {
	logger := log.WithComponent("config")
	path := os.Getenv("FW_ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		logger.Debug().Str("path", path).Msg("no .env file, skipping")
		return
	}
	if err := godotenv.Load(path); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("failed to load .env file")
		return
	}
	logger.Info().Str("path", path).Msg("loaded .env file")
}
