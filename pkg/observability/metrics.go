package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session cache metrics
	sessionCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scuti_session_cache_lookups_total",
			Help: "Session cache lookups by result",
		},
		[]string{"result"},
	)

	sessionStoreOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scuti_session_store_operations_total",
			Help: "Session store operations by outcome",
		},
		[]string{"op", "status"},
	)

	sessionStoreDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scuti_session_store_duration_seconds",
			Help:    "Session store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	sessionEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scuti_session_cache_evictions_total",
			Help: "Sessions evicted from the in-process cache by the idle sweep",
		},
	)

	cachedSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scuti_session_cache_entries",
			Help: "Number of sessions held in the in-process cache",
		},
	)

	// Prompt engine metrics
	promptRenders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scuti_prompt_renders_total",
			Help: "Rendered prompts by category and fallback use",
		},
		[]string{"category", "fallback"},
	)

	promptRenderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scuti_prompt_render_duration_seconds",
			Help:    "Prompt generation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"category"},
	)

	templateCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scuti_template_cache_lookups_total",
			Help: "Template repository cache lookups by result",
		},
		[]string{"result"},
	)

	templateMetricUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scuti_template_metric_updates_total",
			Help: "Template usage metric updates by action and outcome",
		},
		[]string{"action", "status"},
	)

	initOnce sync.Once
)

// InitMetrics registers the collectors with the default registry.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			sessionCacheLookups,
			sessionStoreOps,
			sessionStoreDuration,
			sessionEvictions,
			cachedSessions,
			promptRenders,
			promptRenderDuration,
			templateCacheLookups,
			templateMetricUpdates,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordSessionCache records a session cache lookup ("hit" or "miss").
func RecordSessionCache(result string) {
	sessionCacheLookups.WithLabelValues(result).Inc()
}

// RecordSessionOperation records a session store call.
func RecordSessionOperation(op, status string, duration time.Duration) {
	sessionStoreOps.WithLabelValues(op, status).Inc()
	sessionStoreDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordSessionEvictions adds n idle evictions.
func RecordSessionEvictions(n int) {
	if n > 0 {
		sessionEvictions.Add(float64(n))
	}
}

// SetCachedSessions sets the session cache size gauge.
func SetCachedSessions(count int) {
	cachedSessions.Set(float64(count))
}

// RecordPromptRender records one generated prompt. category must come from a
// bounded set.
func RecordPromptRender(category string, fallback bool, duration time.Duration) {
	promptRenders.WithLabelValues(category, strconv.FormatBool(fallback)).Inc()
	promptRenderDuration.WithLabelValues(category).Observe(duration.Seconds())
}

// RecordTemplateCache records a template repository lookup ("hit" or "miss").
func RecordTemplateCache(result string) {
	templateCacheLookups.WithLabelValues(result).Inc()
}

// RecordTemplateMetricsUpdate records a template usage update.
func RecordTemplateMetricsUpdate(action, status string) {
	templateMetricUpdates.WithLabelValues(action, status).Inc()
}
