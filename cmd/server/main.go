package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"taskflow/backend/internal/api"
	"taskflow/backend/internal/auth"
	"taskflow/backend/internal/config"
	"taskflow/backend/internal/jobs"
	"taskflow/backend/internal/logging"
	"taskflow/backend/internal/rabbit"
	"taskflow/backend/internal/repository"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("configuration loading failed: %v", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting workflow API service",
		"title", cfg.Title, "environment", cfg.Environment, "port", cfg.APIPort)

	// Database
	dbPool, err := initDatabase(ctx, cfg)
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
	logger.Info("database connected")

	// Job runner backend
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid redis url", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	// Broker. The boot connection is mandatory; only runtime broadcast
	// failures are tolerated.
	conn, err := rabbit.Connect(cfg.RabbitURL)
	if err != nil {
		logger.Error("broker connection failed", "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	provider := rabbit.NewConnectionChannelProvider(conn)

	jobClient := jobs.NewClient(rdb, provider, logger)

	// HTTP surface
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(otelecho.Middleware(cfg.Title))

	authz, err := auth.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("auth initialization failed", "error", err)
		os.Exit(1)
	}
	e.Use(authz.Middleware())

	server := api.NewServer(store, jobClient, provider, logger)
	server.Register(e)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.APIPort),
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server starting", "address", httpServer.Addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", "error", err)
			if err := httpServer.Close(); err != nil {
				logger.Error("server close error", "error", err)
			}
		}
		logger.Info("server stopped gracefully")
	}
}

func initDatabase(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}
