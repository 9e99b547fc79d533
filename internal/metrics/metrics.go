package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics methods are safe to call on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDurationMs *prometheus.HistogramVec

	analysisTriggersTotal  *prometheus.CounterVec
	analysisCallbacksTotal *prometheus.CounterVec
	analysisJobsSwept      prometheus.Counter
	analysisDurationMs     *prometheus.HistogramVec

	photoUploadsTotal  *prometheus.CounterVec
	photoUploadBytes   prometheus.Counter
	storageErrorsTotal *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{registry: reg}

	m.httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "route", "status"})
	m.httpRequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds.",
		Buckets: prometheus.ExponentialBuckets(5, 2, 12),
	}, []string{"method", "route"})

	m.analysisTriggersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_triggers_total",
		Help: "Analysis trigger attempts by outcome.",
	}, []string{"outcome"})
	m.analysisCallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_callbacks_total",
		Help: "Analysis callbacks received by outcome.",
	}, []string{"outcome"})
	m.analysisJobsSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analysis_jobs_swept_total",
		Help: "Analysis jobs failed by the stale job sweeper.",
	})
	m.analysisDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "analysis_duration_ms",
		Help:    "Time from trigger to callback in milliseconds.",
		Buckets: prometheus.ExponentialBuckets(1000, 2, 16),
	}, []string{"status"})

	m.photoUploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "photo_uploads_total",
		Help: "Photo uploads by outcome.",
	}, []string{"outcome"})
	m.photoUploadBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "photo_upload_bytes_total",
		Help: "Total bytes of uploaded photo originals.",
	})
	m.storageErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_errors_total",
		Help: "Object storage failures by operation.",
	}, []string{"op"})

	reg.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDurationMs,
		m.analysisTriggersTotal,
		m.analysisCallbacksTotal,
		m.analysisJobsSwept,
		m.analysisDurationMs,
		m.photoUploadsTotal,
		m.photoUploadBytes,
		m.storageErrorsTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	route = strings.TrimSpace(route)
	if route == "" {
		route = "unknown"
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDurationMs.WithLabelValues(method, route).Observe(nonNegativeMs(duration))
}

// IncAnalysisTrigger records a trigger outcome: an error code or "triggered".
func (m *Metrics) IncAnalysisTrigger(outcome string) {
	if m == nil {
		return
	}
	m.analysisTriggersTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncAnalysisCallback(outcome string) {
	if m == nil {
		return
	}
	m.analysisCallbacksTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AddAnalysisJobsSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.analysisJobsSwept.Add(float64(n))
}

func (m *Metrics) ObserveAnalysisDuration(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.analysisDurationMs.WithLabelValues(status).Observe(nonNegativeMs(duration))
}

func (m *Metrics) IncPhotoUpload(outcome string, bytes int64) {
	if m == nil {
		return
	}
	m.photoUploadsTotal.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		m.photoUploadBytes.Add(float64(bytes))
	}
}

func (m *Metrics) IncStorageError(op string) {
	if m == nil {
		return
	}
	m.storageErrorsTotal.WithLabelValues(op).Inc()
}

func nonNegativeMs(d time.Duration) float64 {
	ms := float64(d.Milliseconds())
	if ms < 0 {
		return 0
	}
	return ms
}
