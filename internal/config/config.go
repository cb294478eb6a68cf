// SPDX-License-Identifier: MIT

// Package config provides configuration management for farewatch.
// Precedence: environment > .env file > YAML config file > defaults.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// UpstreamConfig configures the Google Flights result fetcher.
type UpstreamConfig struct {
	BaseURL       string        `yaml:"baseURL"`
	Timeout       time.Duration `yaml:"timeout"`
	UserAgent     string        `yaml:"userAgent"`
	Retries       int           `yaml:"retries"`
	RatePerSecond float64       `yaml:"ratePerSecond"`
	ProxyServer   string        `yaml:"proxyServer"`
	ProxyUsername string        `yaml:"proxyUsername"`
	ProxyPassword string        `yaml:"proxyPassword"`

	// Circuit breaker
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

// LLMConfig configures the OpenAI-compatible recommendation backend.
type LLMConfig struct {
	BaseURL     string        `yaml:"baseURL"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"-"` // secrets never come from the YAML file
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"maxTokens"`
	Timeout     time.Duration `yaml:"timeout"`
	Retries     int           `yaml:"retries"`
}

// CacheConfig selects and configures the search result cache.
type CacheConfig struct {
	Backend       string        `yaml:"backend"` // memory|redis|none
	TTL           time.Duration `yaml:"ttl"`
	RedisAddr     string        `yaml:"redisAddr"`
	RedisPassword string        `yaml:"-"`
	RedisDB       int           `yaml:"redisDB"`
}

// SnapshotConfig configures the raw page snapshot store.
type SnapshotConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// AppConfig is the resolved application configuration.
type AppConfig struct {
	ListenAddr     string   `yaml:"listenAddr"`
	MetricsEnabled bool     `yaml:"metricsEnabled"`
	MetricsAddr    string   `yaml:"metricsAddr"`
	DataDir        string   `yaml:"dataDir"`
	LogLevel       string   `yaml:"logLevel"`
	APIToken       string   `yaml:"-"`
	AllowedOrigins []string `yaml:"allowedOrigins"`

	RateLimitEnabled bool `yaml:"rateLimitEnabled"`
	RateLimitPerMin  int  `yaml:"rateLimitPerMin"`
	RateLimitBurst   int  `yaml:"rateLimitBurst"`

	Upstream UpstreamConfig `yaml:"upstream"`
	LLM      LLMConfig      `yaml:"llm"`
	Cache    CacheConfig    `yaml:"cache"`
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// WarmupSearch optionally runs one search at startup,
	// formatted "ORG-DST-YYYY-MM-DD".
	WarmupSearch string `yaml:"warmupSearch"`

	Version string `yaml:"-"`
}

// Defaults returns the built-in configuration defaults.
func Defaults() AppConfig {
	return AppConfig{
		ListenAddr:     ":8080",
		MetricsEnabled: true,
		MetricsAddr:    ":9090",
		DataDir:        "data",
		LogLevel:       "info",

		RateLimitEnabled: true,
		RateLimitPerMin:  120,
		RateLimitBurst:   30,

		Upstream: UpstreamConfig{
			BaseURL:          "https://www.google.com",
			Timeout:          30 * time.Second,
			UserAgent:        defaultUserAgent,
			Retries:          2,
			RatePerSecond:    0.5,
			BreakerThreshold: 5,
			BreakerReset:     60 * time.Second,
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.together.xyz/v1",
			Model:       "deepseek-ai/DeepSeek-V3",
			Temperature: 0.2,
			MaxTokens:   1024,
			Timeout:     60 * time.Second,
			Retries:     2,
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     15 * time.Minute,
			RedisDB: 0,
		},
		Snapshot: SnapshotConfig{
			Enabled: true,
			TTL:     72 * time.Hour,
		},
	}
}

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("listen address is empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data dir is empty")
	}
	if err := validateBaseURL(c.Upstream.BaseURL); err != nil {
		return fmt.Errorf("upstream base URL: %w", err)
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream timeout must be positive, got %s", c.Upstream.Timeout)
	}
	if c.Upstream.Retries < 0 {
		return fmt.Errorf("upstream retries must not be negative, got %d", c.Upstream.Retries)
	}
	if c.Upstream.ProxyServer != "" {
		if err := validateBaseURL(c.Upstream.ProxyServer); err != nil {
			return fmt.Errorf("proxy server: %w", err)
		}
	}
	switch c.Cache.Backend {
	case "memory", "none":
	case "redis":
		if strings.TrimSpace(c.Cache.RedisAddr) == "" {
			return fmt.Errorf("cache backend is redis but redis address is empty")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if err := validateBaseURL(c.LLM.BaseURL); err != nil {
		return fmt.Errorf("llm base URL: %w", err)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature %v out of range [0,2]", c.LLM.Temperature)
	}
	if c.WarmupSearch != "" {
		if _, _, _, err := ParseWarmupSearch(c.WarmupSearch); err != nil {
			return fmt.Errorf("warmup search: %w", err)
		}
	}
	return nil
}

// ParseWarmupSearch splits "ORG-DST-YYYY-MM-DD" into its parts.
func ParseWarmupSearch(s string) (origin, dest, date string, err error) {
	parts := strings.SplitN(s, "-", 3)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("expected ORG-DST-YYYY-MM-DD, got %q", s)
	}
	origin, dest, date = parts[0], parts[1], parts[2]
	if len(origin) != 3 || len(dest) != 3 {
		return "", "", "", fmt.Errorf("origin and destination must be 3-letter IATA codes, got %q", s)
	}
	if _, perr := time.Parse("2006-01-02", date); perr != nil {
		return "", "", "", fmt.Errorf("invalid date %q: %w", date, perr)
	}
	return origin, dest, date, nil
}

func validateBaseURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q is missing host", raw)
	}
	return nil
}
