// Command server starts the task runner HTTP service: the task
// manager, the job registry, the rate limiter, metrics, and health
// checks, wired behind the httpapi router.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowrunner/taskrunner/internal/engine"
	"github.com/flowrunner/taskrunner/internal/httpapi"
	"github.com/flowrunner/taskrunner/internal/jobs"
	"github.com/flowrunner/taskrunner/internal/platform/config"
	"github.com/flowrunner/taskrunner/internal/platform/health"
	"github.com/flowrunner/taskrunner/internal/platform/logger"
	"github.com/flowrunner/taskrunner/internal/platform/metrics"
	"github.com/flowrunner/taskrunner/internal/ratelimit"
	"github.com/flowrunner/taskrunner/pkg/middleware"
)

const (
	serviceName   = "taskrunner"
	executorTick  = 200 * time.Millisecond
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logger)
	log.Info("starting task runner", "environment", cfg.Service.Environment, "version", cfg.Version)

	m := metrics.NewMetrics(serviceName)

	clock := engine.NewSystemClock()
	definitions := jobs.DefaultDefinitions(clock, executorTick)

	manager, err := buildManager(cfg, definitions.EngineRegistry(), clock, log, m)
	if err != nil {
		log.Fatal("failed to build task manager", "error", err)
	}
	manager.Start()

	limiter, limiterCloser, err := buildLimiter(cfg, clock, log)
	if err != nil {
		log.Fatal("failed to build rate limiter", "error", err)
	}

	healthHandler := health.NewHandler(serviceName, cfg.Version)
	healthHandler.AddCheck("queue", health.QueueDepthChecker(manager.QueueDepth, cfg.Task.MaxQueueSize))
	if pinger, ok := limiter.(interface{ Ping(context.Context) error }); ok {
		healthHandler.AddCheck("rate_limit_store", health.RedisChecker(pinger.Ping))
	}

	srv := httpapi.NewServer(manager, definitions, limiter, log, m, healthHandler)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server listening", "port", cfg.HTTP.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
	}

	manager.Stop()
	if limiterCloser != nil {
		limiterCloser()
	}
	log.Info("task runner stopped")
}

// buildManager constructs the engine.Manager over the in-memory
// priority queue, or a RedisTaskQueue when QUEUE_BACKEND=redis.
func buildManager(cfg *config.Config, registry engine.Registry, clock engine.Clock, log logger.Logger, m *metrics.Metrics) (*engine.Manager, error) {
	managerCfg := engine.Config{
		MaxQueueSize:        cfg.Task.MaxQueueSize,
		Concurrency:         cfg.Task.Concurrency,
		CleanupAfterSeconds: cfg.Task.CleanupIntervalSeconds,
		CleanupSleep:        time.Minute,
	}
	adapter := metrics.NewManagerMetricsAdapter(m)

	switch cfg.Task.QueueBackend {
	case "redis":
		queue, err := engine.NewRedisTaskQueue(engine.RedisQueueConfig{
			Host:      cfg.Redis.Host,
			Port:      cfg.Redis.Port,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			Capacity:  cfg.Task.MaxQueueSize,
		})
		if err != nil {
			return nil, err
		}
		log.Info("task queue backend", "backend", "redis", "addr", cfg.Redis.Addr())
		return engine.NewManagerWithQueue(managerCfg, registry, clock, log, adapter, queue), nil
	default:
		log.Info("task queue backend", "backend", "memory")
		return engine.NewManager(managerCfg, registry, clock, log, adapter), nil
	}
}

// buildLimiter constructs the KeyedLimiter over the in-memory sliding
// window, or a RedisWindowStore when RATE_LIMIT_BACKEND=redis. The
// returned closer is never nil: for the in-memory backend it is
// StopCleanup, which stops the background sweeper; for the Redis
// backend it closes the connection.
func buildLimiter(cfg *config.Config, clock engine.Clock, log logger.Logger) (middleware.KeyedLimiter, func(), error) {
	switch cfg.RateLimit.Backend {
	case "redis":
		store, err := ratelimit.NewRedisWindowStore(ratelimit.RedisStoreConfig{
			Host:          cfg.Redis.Host,
			Port:          cfg.Redis.Port,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			KeyPrefix:     cfg.Redis.KeyPrefix,
			MaxRequests:   cfg.RateLimit.MaxRequestsPerIP,
			PeriodSeconds: time.Duration(cfg.RateLimit.PeriodSeconds) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info("rate limit backend", "backend", "redis", "addr", cfg.Redis.Addr())
		return store, store.Close, nil
	default:
		limiter := ratelimit.New(ratelimit.Config{
			MaxRequests:     cfg.RateLimit.MaxRequestsPerIP,
			PeriodSeconds:   time.Duration(cfg.RateLimit.PeriodSeconds) * time.Second,
			CleanupInterval: time.Duration(cfg.RateLimit.CleanupIntervalSeconds) * time.Second,
		}, monotonicClock{clock}, log)
		limiter.StartCleanup()
		log.Info("rate limit backend", "backend", "memory")
		return limiter, limiter.StopCleanup, nil
	}
}

// monotonicClock adapts engine.Clock to ratelimit.Clock.
type monotonicClock struct {
	engine.Clock
}
