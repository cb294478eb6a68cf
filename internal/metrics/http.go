// SPDX-License-Identifier: MIT
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "farewatch_http_requests_total",
		Help: "HTTP requests by method, path pattern and status code",
	}, []string{"method", "path", "code"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "farewatch_http_request_duration_seconds",
		Help:    "HTTP request latency by method and path pattern",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// RecordHTTPRequest records a completed HTTP request.
func RecordHTTPRequest(method, path string, code int, seconds float64) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(seconds)
}
