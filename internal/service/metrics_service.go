package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP, cache and the access workflow.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	decisions       *prometheus.CounterVec
	codesIssued     prometheus.Counter
	codeCollisions  prometheus.Counter
	issueAttempts   prometheus.Histogram
	entries         *prometheus.CounterVec
	expiredRequests prometheus.Counter
	eventsPublished *prometheus.CounterVec
}

// NewMetricsService registers the Prometheus collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache writes",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
		dbQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.DefBuckets,
		}, []string{"query"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "access_decisions_total",
			Help: "Decisions taken on access requests by outcome",
		}, []string{"outcome"}),
		codesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "access_codes_issued_total",
			Help: "Access codes issued",
		}),
		codeCollisions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "access_code_collisions_total",
			Help: "Freshly drawn access codes that collided with an existing code",
		}),
		issueAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "access_code_issue_attempts",
			Help:    "Draws needed to issue one access code",
			Buckets: []float64{1, 2, 3, 5, 8},
		}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "access_entries_total",
			Help: "Gate entry attempts by status and reason",
		}, []string{"status", "reason"}),
		expiredRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "access_requests_expired_total",
			Help: "Approved requests expired by the sweep",
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "domain_events_published_total",
			Help: "Domain events handed to the broker by result",
		}, []string{"type", "result"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal, m.cacheLatency, m.cacheWrite, m.cacheHits, m.cacheMisses, m.dbQueryDuration,
		m.decisions, m.codesIssued, m.codeCollisions, m.issueAttempts, m.entries, m.expiredRequests, m.eventsPublished,
		goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordDecision counts a committed or refused decision.
func (m *MetricsService) RecordDecision(outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(outcome).Inc()
}

// RecordIssuance records the draws used for one issuance attempt sequence.
func (m *MetricsService) RecordIssuance(attempts int, issued bool) {
	if m == nil {
		return
	}
	m.issueAttempts.Observe(float64(attempts))
	if issued {
		m.codesIssued.Inc()
	}
}

// RecordCodeCollision counts a colliding draw.
func (m *MetricsService) RecordCodeCollision() {
	if m == nil {
		return
	}
	m.codeCollisions.Inc()
}

// RecordEntry counts a gate entry attempt.
func (m *MetricsService) RecordEntry(status, reason string) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(status, reason).Inc()
}

// RecordExpired counts requests expired by a sweep.
func (m *MetricsService) RecordExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expiredRequests.Add(float64(n))
}

// RecordEventPublish counts a publish attempt.
func (m *MetricsService) RecordEventPublish(eventType string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.eventsPublished.WithLabelValues(eventType, result).Inc()
}
