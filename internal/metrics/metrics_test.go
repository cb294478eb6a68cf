// SPDX-License-Identifier: MIT
package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gather returns the metric family with the given name from the default
// registry, or nil when it has no samples yet.
func gather(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func counterValue(mf *dto.MetricFamily, labels map[string]string) float64 {
	if mf == nil {
		return 0
	}
	for _, m := range mf.GetMetric() {
		matched := true
		for k, v := range labels {
			found := false
			for _, lp := range m.GetLabel() {
				if lp.GetName() == k && lp.GetValue() == v {
					found = true
					break
				}
			}
			if !found {
				matched = false
				break
			}
		}
		if matched {
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestSearchCounters(t *testing.T) {
	before := counterValue(gather(t, "farewatch_searches_total"), map[string]string{"outcome": "success"})
	IncSearch("success")
	after := counterValue(gather(t, "farewatch_searches_total"), map[string]string{"outcome": "success"})
	assert.Equal(t, before+1, after)

	before = counterValue(gather(t, "farewatch_search_stage_failures_total"), map[string]string{"stage": "fetch"})
	IncSearchFailure("fetch")
	after = counterValue(gather(t, "farewatch_search_stage_failures_total"), map[string]string{"stage": "fetch"})
	assert.Equal(t, before+1, after)
}

func TestOffersDropped(t *testing.T) {
	before := counterValue(gather(t, "farewatch_offers_dropped_total"), nil)
	IncOffersDropped(3)
	after := counterValue(gather(t, "farewatch_offers_dropped_total"), nil)
	assert.Equal(t, before+3, after)
}

func TestRecordOffersGauge(t *testing.T) {
	RecordOffers("TUN-ORY", 12)
	mf := gather(t, "farewatch_offers_discovered")
	require.NotNil(t, mf)

	var got float64
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "route" && lp.GetValue() == "TUN-ORY" {
				got = m.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 12.0, got)
}

func TestCircuitBreakerStateIsExclusive(t *testing.T) {
	SetCircuitBreakerState("gflights", "open")
	mf := gather(t, "farewatch_circuit_breaker_state")
	require.NotNil(t, mf)

	states := map[string]float64{}
	for _, m := range mf.GetMetric() {
		var target, state string
		for _, lp := range m.GetLabel() {
			switch lp.GetName() {
			case "target":
				target = lp.GetValue()
			case "state":
				state = lp.GetValue()
			}
		}
		if target == "gflights" {
			states[state] = m.GetGauge().GetValue()
		}
	}
	assert.Equal(t, 1.0, states["open"])
	assert.Equal(t, 0.0, states["closed"])
	assert.Equal(t, 0.0, states["half-open"])
}

func TestRecordHTTPRequest(t *testing.T) {
	labels := map[string]string{"method": "GET", "path": "/api/v1/searches", "code": "200"}
	before := counterValue(gather(t, "farewatch_http_requests_total"), labels)
	RecordHTTPRequest("GET", "/api/v1/searches", 200, 0.042)
	after := counterValue(gather(t, "farewatch_http_requests_total"), labels)
	assert.Equal(t, before+1, after)
}

func TestRecordLLMRequest(t *testing.T) {
	labels := map[string]string{"outcome": "success"}
	before := counterValue(gather(t, "farewatch_llm_requests_total"), labels)
	RecordLLMRequest("success", 1.2)
	after := counterValue(gather(t, "farewatch_llm_requests_total"), labels)
	assert.Equal(t, before+1, after)
}
