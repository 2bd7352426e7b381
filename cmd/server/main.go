package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	config "github.com/canner-app/canner/go/configs"
	"github.com/canner-app/canner/go/internal/application/jobs"
	"github.com/canner-app/canner/go/internal/application/services"
	"github.com/canner-app/canner/go/internal/bootstrap"
	"github.com/canner-app/canner/go/internal/core/ports"
	"github.com/canner-app/canner/go/internal/infrastructure/broker"
	"github.com/canner-app/canner/go/internal/infrastructure/health"
	"github.com/canner-app/canner/go/internal/infrastructure/httpserver"
	"github.com/canner-app/canner/go/internal/infrastructure/metrics"
)

const janitorInterval = time.Hour

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger := bootstrap.NewLogger(cfg.Log, os.Stdout)
	logger.Info("Starting canner API...")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Cache backend is chosen once; a later Redis outage degrades to misses.
	backend, cacheClient, err := bootstrap.CacheBackend(cfg, ports.SystemClock{}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize cache:", err)
	}
	if cacheClient != nil {
		defer cacheClient.Close()
	}
	cacheStore := services.NewCacheService(backend, logger)
	responseCache := bootstrap.ResponseCache(cfg, cacheStore)

	rateLimiter := services.NewRateLimiterService(cacheStore, &services.RateLimiterConfig{
		Policies: bootstrap.RateLimitPolicies(cfg.RateLimit),
	}, logger)

	taskMetrics := metrics.NewTaskMetrics(prometheus.DefaultRegisterer)
	prometheus.MustRegister(metrics.NewCacheCollector(cacheStore))

	handlers := jobs.Handlers(bootstrap.JobDeps(cfg, responseCache, logger))
	inline := services.NewInlineExecutor(handlers, &services.InlineConfig{
		Retention: cfg.Tasks.ResultRetention,
		Metrics:   taskMetrics,
	}, logger)
	go inline.RunJanitor(ctx, janitorInterval)

	hcSlice := []ports.HealthChecker{health.NewCacheHealthChecker(backend)}
	if cacheClient != nil {
		hcSlice = append(hcSlice, health.NewRedisHealthChecker(cacheClient))
	}

	var executor ports.TaskExecutor = inline
	brokerClient, err := bootstrap.BrokerClient(cfg, logger)
	if err != nil {
		logger.WithError(err).Warn("Task broker unavailable; running tasks inline")
	}
	if brokerClient != nil {
		defer brokerClient.Close()
		executor = broker.NewRedisBroker(brokerClient, broker.Config{
			Queue:     cfg.Tasks.Queue,
			Retention: cfg.Tasks.ResultRetention,
			OpTimeout: cfg.Redis.OpTimeout,
		})
		hcSlice = append(hcSlice, health.NewBrokerHealthChecker(brokerClient))
	}

	taskService := services.NewTaskService(executor, &services.TaskServiceConfig{
		Fallback:     inline,
		Kinds:        jobs.Kinds(handlers),
		PollInterval: cfg.Tasks.PollInterval,
		Metrics:      taskMetrics,
	}, logger)

	serverConfig := &httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		TLSCertFile:  cfg.Server.TLSCertFile,
		TLSKeyFile:   cfg.Server.TLSKeyFile,
	}

	deps := httpserver.ServerDeps{
		TaskService:    taskService,
		CacheStore:     cacheStore,
		ResponseCache:  responseCache,
		RateLimiter:    rateLimiter,
		HealthCheckers: hcSlice,
	}

	server := httpserver.NewServer(serverConfig, logger, deps)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server:", err)
		}
	}()

	logger.WithFields(map[string]interface{}{
		"task_mode":  taskService.Mode(),
		"task_kinds": jobs.Kinds(handlers),
	}).Infof("Server started on %s:%s", cfg.Server.Host, cfg.Server.Port)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
