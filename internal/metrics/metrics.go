// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Business metrics
	searchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "farewatch_searches_total",
		Help: "Completed flight searches by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	searchStageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "farewatch_search_stage_failures_total",
		Help: "Search failures by stage",
	}, []string{"stage"}) // stage=validate|fetch|parse|normalize|store|export

	offersDiscovered = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "farewatch_offers_discovered",
		Help: "Offers discovered per route in the last search",
	}, []string{"route"})

	offersDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "farewatch_offers_dropped_total",
		Help: "Raw offers dropped during normalization",
	})

	fetchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "farewatch_fetch_duration_seconds",
		Help:    "Time spent fetching a result page from upstream",
		Buckets: prometheus.DefBuckets,
	})

	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "farewatch_upstream_requests_total",
		Help: "Upstream result page requests by status",
	}, []string{"status"}) // status=success|blocked|http_error|network_error

	// LLM metrics
	llmRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "farewatch_llm_requests_total",
		Help: "Chat completion requests by outcome",
	}, []string{"outcome"}) // outcome=success|error

	llmRequestDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "farewatch_llm_request_duration_seconds",
		Help:    "Latency of chat completion requests",
		Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	// Cache metrics
	cacheOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "farewatch_cache_ops_total",
		Help: "Cache operations by result",
	}, []string{"op"}) // op=hit|miss|set

	// Resilience metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "farewatch_circuit_breaker_state",
		Help: "Circuit breaker state (1 for the active state label)",
	}, []string{"target", "state"}) // state=closed|half-open|open

	// Operational metrics
	configValidationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "farewatch_config_validation_errors_total",
		Help: "Total number of configuration validation errors",
	})

	csvExportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "farewatch_csv_exports_total",
		Help: "CSV exports by outcome",
	}, []string{"outcome"})
)

func IncSearch(outcome string)        { searchesTotal.WithLabelValues(outcome).Inc() }
func IncSearchFailure(stage string)   { searchStageFailures.WithLabelValues(stage).Inc() }
func IncOffersDropped(n int)          { offersDroppedTotal.Add(float64(n)) }
func ObserveFetchDuration(s float64)  { fetchDurationSeconds.Observe(s) }
func IncUpstreamRequest(state string) { upstreamRequestsTotal.WithLabelValues(state).Inc() }
func IncConfigValidationError()       { configValidationErrors.Inc() }
func IncCSVExport(outcome string)     { csvExportsTotal.WithLabelValues(outcome).Inc() }

func RecordOffers(route string, n int) {
	offersDiscovered.WithLabelValues(route).Set(float64(n))
}

func RecordLLMRequest(outcome string, seconds float64) {
	llmRequestsTotal.WithLabelValues(outcome).Inc()
	llmRequestDurationSeconds.Observe(seconds)
}

func IncCacheHit()  { cacheOpsTotal.WithLabelValues("hit").Inc() }
func IncCacheMiss() { cacheOpsTotal.WithLabelValues("miss").Inc() }
func IncCacheSet()  { cacheOpsTotal.WithLabelValues("set").Inc() }

// SetCircuitBreakerState marks the given state active for a target and
// clears the other state labels so dashboards can treat it as an enum.
func SetCircuitBreakerState(target, state string) {
	for _, s := range []string{"closed", "half-open", "open"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		circuitBreakerState.WithLabelValues(target, s).Set(v)
	}
}
