package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"taskflow/backend/internal/config"
	"taskflow/backend/internal/engine"
	"taskflow/backend/internal/jobs"
	"taskflow/backend/internal/logging"
	"taskflow/backend/internal/repository"
	"taskflow/backend/internal/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("configuration loading failed: %v", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting workflow job runner", "environment", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolConfig, err := pgxpool.ParseConfig(cfg.PostgresDSN())
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(1)
	}
	dbPool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("database initialization failed", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	store := repository.NewPostgresWorkflowStore(dbPool)
	if err := store.CreateTables(ctx); err != nil {
		logger.Error("schema setup failed", "error", err)
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid redis url", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	textClient := services.NewHTTPTextClient(cfg.TextSidecar.URL)
	executor := engine.New(store, textClient, logger)
	worker := jobs.NewWorker(rdb, executor, logger)

	logger.Info("job runner ready")
	if err := worker.Run(ctx); err != nil {
		logger.Error("job runner stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("job runner stopped gracefully")
}
