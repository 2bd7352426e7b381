package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	config "github.com/canner-app/canner/go/configs"
	"github.com/canner-app/canner/go/internal/application/jobs"
	"github.com/canner-app/canner/go/internal/application/services"
	"github.com/canner-app/canner/go/internal/bootstrap"
	"github.com/canner-app/canner/go/internal/core/ports"
	"github.com/canner-app/canner/go/internal/infrastructure/broker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger := bootstrap.NewLogger(cfg.Log, os.Stdout)

	brokerClient, err := bootstrap.BrokerClient(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to task broker:", err)
	}
	if brokerClient == nil {
		logger.Fatal("TASK_BROKER_URL is not set; the worker has nothing to consume")
	}
	defer brokerClient.Close()

	backend, cacheClient, err := bootstrap.CacheBackend(cfg, ports.SystemClock{}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize cache:", err)
	}
	if cacheClient != nil {
		defer cacheClient.Close()
	}
	cacheStore := services.NewCacheService(backend, logger)

	queue := broker.NewRedisBroker(brokerClient, broker.Config{
		Queue:     cfg.Tasks.Queue,
		Retention: cfg.Tasks.ResultRetention,
		OpTimeout: cfg.Redis.OpTimeout,
	})
	handlers := jobs.Handlers(bootstrap.JobDeps(cfg, bootstrap.ResponseCache(cfg, cacheStore), logger))
	worker := services.NewWorker(queue, handlers, &services.WorkerConfig{
		Concurrency: cfg.Tasks.WorkerCount,
		TimeLimit:   cfg.Tasks.TimeLimit,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.WithFields(map[string]interface{}{
		"queue":       cfg.Tasks.Queue,
		"concurrency": cfg.Tasks.WorkerCount,
		"time_limit":  cfg.Tasks.TimeLimit.String(),
		"task_kinds":  jobs.Kinds(handlers),
	}).Info("Worker started")

	worker.Run(ctx)

	logger.Info("Worker exited")
}
