package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arnoma/tutor-admin-api/internal/dto"
	"github.com/arnoma/tutor-admin-api/pkg/jobs"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the reconciliation services.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	classifications *prometheus.CounterVec
	noteDecisions   *prometheus.CounterVec
	autoLinks       *prometheus.CounterVec
	reportDuration  *prometheus.HistogramVec

	cacheHitCount  uint64
	cacheMissCount uint64
	requestCount   uint64
	linkedCount    uint64
	unmatchedCount uint64
}

const metricsNamespace = "tutor_admin"

// NewMetricsService builds a private registry holding the HTTP, cache, reconciliation,
// payment and report collectors plus the Go runtime and process collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()
	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency by route template and status",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by route template and status",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: "cache", Name: "read_seconds",
			Help:    "Latency of reconciliation cache reads",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: "cache", Name: "write_seconds",
			Help:    "Latency of reconciliation cache writes",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: "cache", Name: "hit_ratio",
			Help: "Share of reconciliation cache reads served from Redis",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "cache", Name: "hits_total",
			Help: "Reconciliation cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "cache", Name: "misses_total",
			Help: "Reconciliation cache misses",
		}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "reconcile", Name: "class_classifications_total",
			Help: "Class dates classified, by resulting status",
		}, []string{"status"}),
		noteDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "reconcile", Name: "note_decisions_total",
			Help: "Note unlock decisions, by reason",
		}, []string{"reason", "unlocked"}),
		autoLinks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "payments", Name: "autolink_total",
			Help: "Auto-link attempts on unlinked payments, by outcome",
		}, []string{"outcome"}),
		reportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: "reports", Name: "render_seconds",
			Help:    "Time spent rendering report files, by format",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"format"}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestDuration, m.requestTotal,
		m.cacheLatency, m.cacheWrite, m.cacheHitRatio, m.cacheHits, m.cacheMisses,
		m.classifications, m.noteDecisions, m.autoLinks, m.reportDuration,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// RegisterQueue exposes the counters of a background queue. Registering the same name twice fails.
func (m *MetricsService) RegisterQueue(name string, stats func() jobs.Stats) error {
	if m == nil {
		return nil
	}
	labels := prometheus.Labels{"queue": name}
	gauge := func(metric, help string, value func(jobs.Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: "queue", Name: metric, Help: help, ConstLabels: labels,
		}, func() float64 { return value(stats()) })
	}
	counter := func(metric, help string, value func(jobs.Stats) float64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "queue", Name: metric, Help: help, ConstLabels: labels,
		}, func() float64 { return value(stats()) })
	}
	for _, c := range []prometheus.Collector{
		gauge("pending_jobs", "Jobs waiting in the buffer", func(s jobs.Stats) float64 { return float64(s.Pending) }),
		counter("processed_total", "Jobs handled successfully", func(s jobs.Stats) float64 { return float64(s.Processed) }),
		counter("retried_total", "Failed runs scheduled for retry", func(s jobs.Stats) float64 { return float64(s.Retried) }),
		counter("failed_total", "Jobs dropped after exhausting retries", func(s jobs.Stats) float64 { return float64(s.Failed) }),
	} {
		if err := m.registry.Register(c); err != nil {
			return fmt.Errorf("register queue %s metrics: %w", name, err)
		}
	}
	return nil
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordClassification counts one classified class date.
func (m *MetricsService) RecordClassification(status string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(status).Inc()
}

// RecordNoteDecision counts one note gate verdict.
func (m *MetricsService) RecordNoteDecision(reason string, unlocked bool) {
	if m == nil {
		return
	}
	m.noteDecisions.WithLabelValues(reason, fmt.Sprintf("%t", unlocked)).Inc()
}

// RecordAutoLink counts auto-link outcomes: linked, unmatched, ambiguous or failed.
func (m *MetricsService) RecordAutoLink(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.autoLinks.WithLabelValues(outcome).Add(float64(n))
	switch outcome {
	case AutoLinkLinked:
		atomic.AddUint64(&m.linkedCount, uint64(n))
	case AutoLinkUnmatched, AutoLinkAmbiguous:
		atomic.AddUint64(&m.unmatchedCount, uint64(n))
	}
}

// ObserveReportRender records report rendering time per format.
func (m *MetricsService) ObserveReportRender(format string, duration time.Duration) {
	if m == nil {
		return
	}
	m.reportDuration.WithLabelValues(format).Observe(duration.Seconds())
}

// Snapshot returns process-lifetime counters for the readiness endpoint.
func (m *MetricsService) Snapshot() dto.MetricsSnapshot {
	if m == nil {
		return dto.MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	var ratio float64
	if hits+misses > 0 {
		ratio = float64(hits) / float64(hits+misses)
	}
	return dto.MetricsSnapshot{
		RequestsTotal:    atomic.LoadUint64(&m.requestCount),
		CacheHitRatio:    ratio,
		PaymentsLinked:   atomic.LoadUint64(&m.linkedCount),
		PaymentsUnlinked: atomic.LoadUint64(&m.unmatchedCount),
		Goroutines:       runtime.NumGoroutine(),
		GeneratedAt:      time.Now().UTC(),
	}
}
