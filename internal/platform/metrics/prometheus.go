package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the HTTP surface, the
// task manager, and the rate limiter.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPActiveRequests  *prometheus.GaugeVec

	TasksSubmitted *prometheus.CounterVec
	TasksCompleted *prometheus.CounterVec
	TasksFailed    *prometheus.CounterVec
	TasksCancelled *prometheus.CounterVec
	QueueDepth     prometheus.Gauge

	RateLimitDenied *prometheus.CounterVec
}

// NewMetrics creates and registers every collector under namespace.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),
		HTTPActiveRequests: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_active_requests",
				Help:      "Number of active HTTP requests",
			},
			[]string{"method"},
		),

		TasksSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_submitted_total",
				Help:      "Total number of tasks submitted",
			},
			[]string{"task_type"},
		),
		TasksCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_completed_total",
				Help:      "Total number of tasks completed",
			},
			[]string{"task_type"},
		),
		TasksFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_failed_total",
				Help:      "Total number of tasks failed",
			},
			[]string{"task_type"},
		),
		TasksCancelled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_cancelled_total",
				Help:      "Total number of tasks cancelled",
			},
			[]string{"task_type"},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Current number of tasks awaiting a worker",
			},
		),

		RateLimitDenied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_denied_total",
				Help:      "Total number of requests denied by the rate limiter",
			},
			[]string{"key"},
		),
	}

	m.Register()
	return m
}

// Register registers every collector with the default registry.
func (m *Metrics) Register() {
	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPActiveRequests,
		m.TasksSubmitted,
		m.TasksCompleted,
		m.TasksFailed,
		m.TasksCancelled,
		m.QueueDepth,
		m.RateLimitDenied,
	)
}

// Handler returns the Prometheus scrape handler for /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// HTTPMetricsMiddleware records per-request counters and latency.
func (m *Metrics) HTTPMetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			m.HTTPActiveRequests.WithLabelValues(r.Method).Inc()
			defer m.HTTPActiveRequests.WithLabelValues(r.Method).Dec()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// ManagerMetricsAdapter implements engine.ManagerMetrics over the
// shared Prometheus collectors. engine.ManagerMetrics carries no
// task_type label, so per-type counters are recorded under "".
type ManagerMetricsAdapter struct {
	m *Metrics
}

// NewManagerMetricsAdapter returns an engine.ManagerMetrics view over m.
func NewManagerMetricsAdapter(m *Metrics) *ManagerMetricsAdapter {
	return &ManagerMetricsAdapter{m: m}
}

func (a *ManagerMetricsAdapter) TaskSubmitted() { a.m.TasksSubmitted.WithLabelValues("").Inc() }
func (a *ManagerMetricsAdapter) TaskCompleted() { a.m.TasksCompleted.WithLabelValues("").Inc() }
func (a *ManagerMetricsAdapter) TaskFailed()    { a.m.TasksFailed.WithLabelValues("").Inc() }
func (a *ManagerMetricsAdapter) TaskCancelled() { a.m.TasksCancelled.WithLabelValues("").Inc() }
func (a *ManagerMetricsAdapter) QueueDepth(n int) { a.m.QueueDepth.Set(float64(n)) }
