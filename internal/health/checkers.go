// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"
	"time"

	"github.com/farewatch/farewatch/internal/gflights"
)

// Pinger matches the store's connection check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker probes the search database.
type StoreChecker struct {
	store Pinger
}

// NewStoreChecker wraps a database connection check.
func NewStoreChecker(store Pinger) *StoreChecker {
	return &StoreChecker{store: store}
}

func (c *StoreChecker) Name() string { return "store" }

func (c *StoreChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.store.Ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "database reachable"}
}

// BreakerStater matches the upstream client's circuit breaker.
type BreakerStater interface {
	State() gflights.State
}

// UpstreamChecker reports the circuit breaker protecting the scraper.
// An open breaker degrades readiness but does not fail it; cached and
// stored results still serve.
type UpstreamChecker struct {
	breaker BreakerStater
}

// NewUpstreamChecker wraps the scraper's circuit breaker.
func NewUpstreamChecker(breaker BreakerStater) *UpstreamChecker {
	return &UpstreamChecker{breaker: breaker}
}

func (c *UpstreamChecker) Name() string { return "upstream" }

func (c *UpstreamChecker) Check(_ context.Context) CheckResult {
	state := c.breaker.State()
	if state == gflights.StateOpen {
		return CheckResult{Status: StatusDegraded, Message: "circuit breaker open"}
	}
	return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("circuit breaker %s", state)}
}

// LastRunChecker reports the outcome of the most recent search run. A
// failed run degrades readiness; stored results still serve.
type LastRunChecker struct {
	status func() (lastRun time.Time, lastErr string)
}

// NewLastRunChecker wraps a status source, typically the job tracker.
func NewLastRunChecker(status func() (time.Time, string)) *LastRunChecker {
	return &LastRunChecker{status: status}
}

func (c *LastRunChecker) Name() string { return "last_run" }

func (c *LastRunChecker) Check(_ context.Context) CheckResult {
	lastRun, lastErr := c.status()
	if lastRun.IsZero() {
		return CheckResult{Status: StatusHealthy, Message: "no runs yet"}
	}
	if lastErr != "" {
		return CheckResult{Status: StatusDegraded, Error: lastErr}
	}
	return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("last run %s", lastRun.Format(time.RFC3339))}
}

// LLMChecker reports whether the recommender has credentials. A missing
// key degrades the service; recommendations fall back to plain text.
type LLMChecker struct {
	configured bool
}

// NewLLMChecker records whether an API key is configured.
func NewLLMChecker(configured bool) *LLMChecker {
	return &LLMChecker{configured: configured}
}

func (c *LLMChecker) Name() string { return "llm" }

func (c *LLMChecker) Check(_ context.Context) CheckResult {
	if !c.configured {
		return CheckResult{Status: StatusDegraded, Message: "api key not configured"}
	}
	return CheckResult{Status: StatusHealthy, Message: "api key configured"}
}
