package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"careerResume/internal/catalog"
	"careerResume/internal/config"
	"careerResume/internal/database"
	"careerResume/internal/metrics"
	"careerResume/internal/storage"
	"careerResume/internal/tasks"
	"careerResume/internal/worker"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("worker exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}

	objects, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		return fmt.Errorf("init storage client: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.RedisAddr()})
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	if cfg.Worker.MetricsPort > 0 {
		go serveMetrics(logger, cfg.Worker.MetricsPort)
	}

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeCertificateVerify, worker.NewCertificateTaskHandler(
		catalog.NewAchievementStore(db),
		objects,
		redisClient,
		logger,
	))

	server := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.Redis.RedisAddr()}, asynq.Config{
		Concurrency:     cfg.Worker.Concurrency,
		ShutdownTimeout: 10 * time.Second,
	})
	logger.Info("worker started",
		slog.String("redis_addr", cfg.Redis.RedisAddr()),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)
	// Run 自行处理 SIGTERM/SIGINT，等待进行中的任务结束后返回。
	return server.Run(mux)
}

func serveMetrics(logger *slog.Logger, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("worker metrics endpoint stopped", slog.Any("error", err))
	}
}
