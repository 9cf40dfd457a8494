// Package httpapi pins the HTTP surface spec.md §6 describes: task
// submission, lookup with long-poll, streaming listing, and
// cancellation, plus the ambient /health and /metrics endpoints.
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/flowrunner/taskrunner/internal/engine"
	"github.com/flowrunner/taskrunner/internal/jobs"
	"github.com/flowrunner/taskrunner/internal/platform/health"
	"github.com/flowrunner/taskrunner/internal/platform/logger"
	"github.com/flowrunner/taskrunner/internal/platform/metrics"
	"github.com/flowrunner/taskrunner/pkg/middleware"
)

// Server holds every dependency a handler needs.
type Server struct {
	manager     *engine.Manager
	definitions jobs.Definitions
	limiter     middleware.KeyedLimiter
	log         logger.Logger
	metrics     *metrics.Metrics
	health      *health.Handler
}

// NewServer wires the manager, job registry, rate limiter, metrics,
// and health aggregator into a Server ready for Router(). limiter may
// be either the in-memory Limiter or the Redis-backed window store;
// both satisfy middleware.KeyedLimiter.
func NewServer(manager *engine.Manager, definitions jobs.Definitions, limiter middleware.KeyedLimiter, log logger.Logger, m *metrics.Metrics, h *health.Handler) *Server {
	return &Server{
		manager:     manager,
		definitions: definitions,
		limiter:     limiter,
		log:         log,
		metrics:     m,
		health:      h,
	}
}

// Router builds the full gorilla/mux router with the middleware chain
// applied from outermost to innermost as: recovery (so it catches
// panics from every layer below it), request ID, CORS, metrics, and
// rate limiting closest to the router.
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/api/v1/tasks", s.handleSubmit).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/tasks", s.handleList).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/tasks/{task_id}", s.handleGet).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/tasks/{task_id}", s.handleCancel).Methods(http.MethodDelete)

	router.HandleFunc("/health", s.health.ReadinessHandler()).Methods(http.MethodGet)
	router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	var handler http.Handler = router
	handler = middleware.RateLimit(s.limiter, func(key string) {
		s.metrics.RateLimitDenied.WithLabelValues(key).Inc()
	})(handler)
	handler = s.metrics.HTTPMetricsMiddleware()(handler)
	handler = middleware.CORS(middleware.DefaultCORSConfig())(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.RecoveryWithLogger(loggerAdapter{s.log})(handler)

	return handler
}

// loggerAdapter satisfies middleware.Logger with the platform logger.
type loggerAdapter struct {
	log logger.Logger
}

func (a loggerAdapter) Info(msg string, kv ...interface{})  { a.log.Info(msg, kv...) }
func (a loggerAdapter) Error(msg string, kv ...interface{}) { a.log.Error(msg, kv...) }
func (a loggerAdapter) Debug(msg string, kv ...interface{}) { a.log.Debug(msg, kv...) }

// waitParams parses the wait/timeout query parameters shared by GET
// and DELETE /api/v1/tasks/{task_id}, clamping timeout to [1, 60].
func waitParams(r *http.Request) (wait bool, timeout time.Duration) {
	q := r.URL.Query()
	wait = q.Get("wait") == "true"

	seconds := 30
	if raw := q.Get("timeout"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			seconds = v
		}
	}
	if seconds < 1 {
		seconds = 1
	}
	if seconds > 60 {
		seconds = 60
	}
	return wait, time.Duration(seconds) * time.Second
}

// afterTimeout returns a channel that fires once after d, for
// selecting against a record's change notifier in long-poll handlers.
func afterTimeout(d time.Duration) <-chan time.Time {
	return time.After(d)
}
