package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/cartpulse/cartpulse/internal/cache"
	"github.com/cartpulse/cartpulse/internal/commerce"
	"github.com/cartpulse/cartpulse/internal/config"
	"github.com/cartpulse/cartpulse/internal/database"
	"github.com/cartpulse/cartpulse/internal/metrics"
	"github.com/cartpulse/cartpulse/internal/middleware"
	"github.com/cartpulse/cartpulse/internal/queue"
	"github.com/cartpulse/cartpulse/internal/storage"
	"github.com/cartpulse/cartpulse/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := middleware.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting cartpulse worker",
		zap.String("env", cfg.Server.Env),
		zap.String("queue", cfg.Worker.QueueName),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgresDB(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()

	redis, err := database.NewRedisDB(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()

	m := metrics.NewMetrics("cartpulse_worker")

	statsRepo := storage.NewPostgresStatsRepo(db.Pool)
	c := cache.NewRedisCache(redis.Client, logger)
	q := queue.NewRedisQueue(redis.Client, cfg.Worker.QueueName, logger)
	aggregator := commerce.NewAggregator(statsRepo, c, m, logger)

	w := worker.New(q, aggregator, cfg.Worker, m, logger)

	// One rollup at startup so a fresh deployment has current stats.
	if err := aggregator.RunToday(ctx, "startup"); err != nil {
		logger.Warn("startup rollup failed", zap.Error(err))
	}

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("worker failed", zap.Error(err))
	}

	logger.Info("worker stopped")
}
