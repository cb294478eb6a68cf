// SPDX-License-Identifier: MIT

package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	// RequestLimit is the maximum number of requests per window.
	RequestLimit int
	// WindowSize is the rate limiting window. Defaults to one minute.
	WindowSize time.Duration
	// KeyFunc extracts the limit key; defaults to the client IP.
	KeyFunc httprate.KeyFunc
}

// RateLimit limits requests per client using a sliding window counter.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.WindowSize == 0 {
		cfg.WindowSize = time.Minute
	}
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = httprate.KeyByIP
	}

	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowSize,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(cfg.WindowSize.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
		}),
	)
}

// SearchRateLimit guards the scrape-triggering endpoints. Scrapes are
// expensive and get the upstream blocked when hammered.
func SearchRateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		perMinute = 10
	}
	return RateLimit(RateLimitConfig{RequestLimit: perMinute})
}
