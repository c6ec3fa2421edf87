package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the analytics service.
type Metrics struct {
	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec

	// Ingest metrics
	EventsIngested   *prometheus.CounterVec
	EventsRejected   *prometheus.CounterVec
	PurchasesTracked prometheus.Counter
	SessionsLinked   prometheus.Counter

	// Rollup metrics
	RollupRuns     *prometheus.CounterVec
	RollupDuration prometheus.Histogram
	RollupFailures prometheus.Counter

	// Queue metrics
	JobsEnqueued  *prometheus.CounterVec
	JobsProcessed *prometheus.CounterVec
	JobsDead      prometheus.Counter
	QueueDepth    prometheus.Gauge

	// Cache metrics
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	CacheInvalidated prometheus.Counter

	// System metrics
	DBConnections *prometheus.GaugeVec
	RateLimitHits *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		HTTPRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests by route and status",
			},
			[]string{"route", "method", "status"},
		),
		HTTPLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"route", "method"},
		),

		EventsIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_ingested_total",
				Help:      "Total tracking events accepted",
			},
			[]string{"type"},
		),
		EventsRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_rejected_total",
				Help:      "Tracking events rejected by validation",
			},
			[]string{"reason"},
		),
		PurchasesTracked: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "purchases_tracked_total",
				Help:      "Total purchases recorded",
			},
		),
		SessionsLinked: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_linked_total",
				Help:      "Total anonymous sessions linked to users",
			},
		),

		RollupRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollup_runs_total",
				Help:      "Daily stat recompute runs by trigger",
			},
			[]string{"trigger"}, // job, interval
		),
		RollupDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rollup_duration_seconds",
				Help:      "Daily stat recompute duration",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			},
		),
		RollupFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollup_failures_total",
				Help:      "Daily stat recompute failures",
			},
		),

		JobsEnqueued: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_enqueued_total",
				Help:      "Jobs pushed onto the rollup queue",
			},
			[]string{"kind"},
		),
		JobsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_processed_total",
				Help:      "Jobs consumed from the rollup queue",
			},
			[]string{"kind", "status"}, // ok, retried, dead
		),
		JobsDead: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_dead_total",
				Help:      "Jobs moved to the dead-letter list",
			},
		),
		QueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Pending jobs on the rollup queue",
			},
		),

		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Cache hits by key family",
			},
			[]string{"family"},
		),
		CacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Cache misses by key family",
			},
			[]string{"family"},
		),
		CacheInvalidated: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_keys_invalidated_total",
				Help:      "Cache keys removed by invalidation",
			},
		),

		DBConnections: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections",
				Help:      "Database connection pool stats",
			},
			[]string{"state"}, // idle, in_use, total
		),
		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Rate limit rejections by endpoint",
			},
			[]string{"endpoint"},
		),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(route, method, status string, latency time.Duration) {
	m.HTTPRequests.WithLabelValues(route, method, status).Inc()
	m.HTTPLatency.WithLabelValues(route, method).Observe(latency.Seconds())
}

// RecordEvent records an accepted tracking event.
func (m *Metrics) RecordEvent(eventType string) {
	m.EventsIngested.WithLabelValues(eventType).Inc()
}

// RecordEventRejected records a validation rejection.
func (m *Metrics) RecordEventRejected(reason string) {
	m.EventsRejected.WithLabelValues(reason).Inc()
}

// RecordRollup records a completed recompute run.
func (m *Metrics) RecordRollup(trigger string, duration time.Duration) {
	m.RollupRuns.WithLabelValues(trigger).Inc()
	m.RollupDuration.Observe(duration.Seconds())
}

// RecordCacheRead records a cache hit or miss for a key family.
func (m *Metrics) RecordCacheRead(family string, hit bool) {
	if hit {
		m.CacheHits.WithLabelValues(family).Inc()
		return
	}
	m.CacheMisses.WithLabelValues(family).Inc()
}

// UpdateDBStats updates database connection metrics.
func (m *Metrics) UpdateDBStats(idle, inUse, total int) {
	m.DBConnections.WithLabelValues("idle").Set(float64(idle))
	m.DBConnections.WithLabelValues("in_use").Set(float64(inUse))
	m.DBConnections.WithLabelValues("total").Set(float64(total))
}
