// Package metrics provides Prometheus metrics for the GameRadar analytics service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Latency buckets in milliseconds shared by the pipeline and search histograms.
var latencyBucketsMs = []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500} //nolint:gochecknoglobals // constant bucket layout

// Manager manages all Prometheus metrics for the GameRadar service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Recomputation pipeline
	recomputeTotal     prometheus.Counter
	recomputeFailures  *prometheus.CounterVec
	recomputeLatency   prometheus.Histogram
	snapshotsUpserted  prometheus.Counter
	snapshotsSkipped   prometheus.Counter
	notificationsTotal *prometheus.CounterVec

	// Full refresh
	refreshRuns     *prometheus.CounterVec
	refreshPlayers  prometheus.Gauge
	refreshDuration prometheus.Histogram

	// Similarity index
	indexRebuilds        *prometheus.CounterVec
	indexRebuildDuration prometheus.Histogram
	indexSize            prometheus.Gauge
	indexClusters        prometheus.Gauge
	indexGeneration      prometheus.Gauge
	searchLatency        *prometheus.HistogramVec

	// Recommendations
	recommendations *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	breakerState    prometheus.Gauge
	cacheLookups    *prometheus.CounterVec

	// Queue and workers
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueErrors *prometheus.CounterVec
	workerCount        prometheus.Gauge

	// Store
	totalPlayers prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "gameradar",
		subsystem:        "analytics",
		histogramBuckets: latencyBucketsMs,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets, ConstLabels: m.constLabels}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.recomputeTotal = auto.NewCounter(m.counterOpts("recompute_total", "Total number of snapshot recomputations attempted"))
	m.recomputeFailures = auto.NewCounterVec(m.counterOpts("recompute_failures_total", "Recomputations that left a snapshot stale, by reason"), []string{"reason"})
	m.recomputeLatency = auto.NewHistogram(m.histogramOpts("recompute_latency_milliseconds", "Latency of a single player recomputation"))
	m.snapshotsUpserted = auto.NewCounter(m.counterOpts("snapshots_upserted_total", "Snapshots written to the analytics store"))
	m.snapshotsSkipped = auto.NewCounter(m.counterOpts("snapshots_skipped_total", "Snapshot writes ignored because a newer source revision was stored"))
	m.notificationsTotal = auto.NewCounterVec(m.counterOpts("notifications_total", "Change notifications received by outcome"), []string{"outcome"})

	m.refreshRuns = auto.NewCounterVec(m.counterOpts("full_refresh_runs_total", "Full refresh runs by outcome"), []string{"outcome"})
	m.refreshPlayers = auto.NewGauge(m.gaugeOpts("full_refresh_players", "Players processed by the last full refresh"))
	m.refreshDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "full_refresh_duration_seconds",
		Help:    "Duration of full refresh runs",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	})

	m.indexRebuilds = auto.NewCounterVec(m.counterOpts("index_rebuilds_total", "Similarity index rebuilds by outcome"), []string{"outcome"})
	m.indexRebuildDuration = auto.NewHistogram(m.histogramOpts("index_rebuild_duration_milliseconds", "Duration of similarity index rebuilds"))
	m.indexSize = auto.NewGauge(m.gaugeOpts("index_vectors", "Vectors in the current similarity index generation"))
	m.indexClusters = auto.NewGauge(m.gaugeOpts("index_clusters", "Clusters in the current similarity index generation"))
	m.indexGeneration = auto.NewGauge(m.gaugeOpts("index_generation", "Number of the current similarity index generation"))
	m.searchLatency = auto.NewHistogramVec(m.histogramOpts("search_latency_milliseconds", "Similarity search latency by method"), []string{"method"})

	m.recommendations = auto.NewCounterVec(m.counterOpts("recommendations_total", "Recommendation requests served by method"), []string{"method"})
	m.fallbacks = auto.NewCounterVec(m.counterOpts("fallbacks_total", "Exact fallback scans by reason"), []string{"reason"})
	m.breakerState = auto.NewGauge(m.gaugeOpts("index_breaker_state", "Index circuit breaker state (0 closed, 1 half-open, 2 open)"))
	m.cacheLookups = auto.NewCounterVec(m.counterOpts("cache_lookups_total", "Response cache lookups by result"), []string{"result"})

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current size of the recomputation queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Capacity of the recomputation queue"))
	m.queueEnqueueErrors = auto.NewCounterVec(m.counterOpts("queue_enqueue_errors_total", "Failed enqueue attempts by reason"), []string{"reason"})
	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Number of recomputation workers"))

	m.totalPlayers = auto.NewGauge(m.gaugeOpts("players", "Players with at least one analytics snapshot"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds"), []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_total", "Errors by component and type"), []string{"component", "error_type"})
}

// RecordRecompute records one recomputation attempt and its latency.
func RecordRecompute(latencyMs float64) {
	globalManager.recomputeTotal.Inc()
	globalManager.recomputeLatency.Observe(latencyMs)
}

// RecordRecomputeFailure counts a recomputation that left a snapshot stale.
func RecordRecomputeFailure(reason string) {
	globalManager.recomputeFailures.WithLabelValues(reason).Inc()
}

// RecordSnapshotUpserted counts a snapshot write.
func RecordSnapshotUpserted() {
	globalManager.snapshotsUpserted.Inc()
}

// RecordSnapshotSkipped counts a write ignored for carrying an older revision.
func RecordSnapshotSkipped() {
	globalManager.snapshotsSkipped.Inc()
}

// RecordNotification counts a change notification by outcome (enqueued, duplicate, dropped, invalid).
func RecordNotification(outcome string) {
	globalManager.notificationsTotal.WithLabelValues(outcome).Inc()
}

// RecordFullRefresh records the outcome of a full refresh run.
func RecordFullRefresh(outcome string, players int, seconds float64) {
	globalManager.refreshRuns.WithLabelValues(outcome).Inc()
	globalManager.refreshPlayers.Set(float64(players))
	globalManager.refreshDuration.Observe(seconds)
}

// RecordIndexRebuild records the outcome of an index rebuild.
func RecordIndexRebuild(outcome string, durationMs float64) {
	globalManager.indexRebuilds.WithLabelValues(outcome).Inc()
	globalManager.indexRebuildDuration.Observe(durationMs)
}

// UpdateIndexGeneration publishes the shape of the live index generation.
func UpdateIndexGeneration(generation uint64, size, clusters int) {
	globalManager.indexGeneration.Set(float64(generation))
	globalManager.indexSize.Set(float64(size))
	globalManager.indexClusters.Set(float64(clusters))
}

// RecordSearchLatency records a similarity search by method (index, fallback).
func RecordSearchLatency(method string, latencyMs float64) {
	globalManager.searchLatency.WithLabelValues(method).Observe(latencyMs)
}

// RecordRecommendation counts a served recommendation response.
func RecordRecommendation(method string) {
	globalManager.recommendations.WithLabelValues(method).Inc()
}

// RecordFallback counts an exact fallback scan by the reason the index was bypassed.
func RecordFallback(reason string) {
	globalManager.fallbacks.WithLabelValues(reason).Inc()
}

// UpdateBreakerState sets the index breaker state gauge.
func UpdateBreakerState(state int) {
	globalManager.breakerState.Set(float64(state))
}

// RecordCacheLookup counts a response cache lookup (hit, miss, error).
func RecordCacheLookup(result string) {
	globalManager.cacheLookups.WithLabelValues(result).Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueueError counts a failed enqueue.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateTotalPlayers sets the number of players in the analytics store.
func UpdateTotalPlayers(count int) {
	globalManager.totalPlayers.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request and its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByComponent records errors by component and type.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
