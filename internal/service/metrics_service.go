package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic, the summary cache
// and the grading engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	summaries       *prometheus.CounterVec
	summaryDuration prometheus.Observer
	formulaErrors   *prometheus.CounterVec
	scoreWrites     *prometheus.CounterVec
	scoreClamps     prometheus.Counter
	recomputeJobs   *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	summaries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gradebook_summaries_computed_total",
		Help: "Annual summaries computed by promotion status",
	}, []string{"status"})

	summaryDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gradebook_summary_compute_seconds",
		Help:    "Time spent computing one annual summary",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
	})

	formulaErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gradebook_formula_errors_total",
		Help: "Custom formula failures by kind",
	}, []string{"kind"})

	scoreWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gradebook_score_writes_total",
		Help: "Score writes by outcome",
	}, []string{"outcome"})

	scoreClamps := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gradebook_score_clamps_total",
		Help: "Values adjusted to their effective maximum on write",
	})

	recomputeJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gradebook_recompute_jobs_total",
		Help: "Summary recompute jobs by result",
	}, []string{"result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		summaries, summaryDuration, formulaErrors, scoreWrites, scoreClamps, recomputeJobs, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		summaries:       summaries,
		summaryDuration: summaryDuration,
		formulaErrors:   formulaErrors,
		scoreWrites:     scoreWrites,
		scoreClamps:     scoreClamps,
		recomputeJobs:   recomputeJobs,
	}
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

// Registry exposes the underlying registry, mainly for tests.
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

// ObserveSummary records one computed summary.
func (m *MetricsService) ObserveSummary(status models.PromotionStatus, duration time.Duration) {
	if m == nil {
		return
	}
	m.summaries.WithLabelValues(string(status)).Inc()
	m.summaryDuration.Observe(duration.Seconds())
}

// RecordFormulaError counts a custom formula failure.
func (m *MetricsService) RecordFormulaError(kind string) {
	if m == nil {
		return
	}
	m.formulaErrors.WithLabelValues(kind).Inc()
}

// RecordScoreWrite counts a score write and the clamps it produced.
func (m *MetricsService) RecordScoreWrite(outcome string, clamps int) {
	if m == nil {
		return
	}
	m.scoreWrites.WithLabelValues(outcome).Inc()
	if clamps > 0 {
		m.scoreClamps.Add(float64(clamps))
	}
}

// RecordRecomputeJob counts a finished recompute job.
func (m *MetricsService) RecordRecomputeJob(success bool) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.recomputeJobs.WithLabelValues(result).Inc()
}
