// Package observability exports cursor metrics to Prometheus.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "datatree"

// PrometheusRecorder implements core.MetricsRecorder with counters and a
// latency histogram per source operation.
type PrometheusRecorder struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	cache    *prometheus.CounterVec
}

// NewPrometheusRecorder registers the collectors on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_calls_total",
			Help:      "Source calls by operation and outcome.",
		}, []string{"operation", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_call_duration_seconds",
			Help:      "Latency of source calls by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		}, []string{"operation"}),
		cache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by operation and result.",
		}, []string{"operation", "result"}),
	}
}

// Observe implements core.MetricsRecorder.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	status := "error"
	if success {
		status = "success"
	}
	r.calls.WithLabelValues(operation, status).Inc()
	r.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// CacheLookup implements core.MetricsRecorder.
func (r *PrometheusRecorder) CacheLookup(operation string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cache.WithLabelValues(operation, result).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
