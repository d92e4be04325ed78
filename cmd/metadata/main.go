// The metadata service listens for workflow creation events and records
// definition metadata. It demonstrates the choreography side of the
// pipeline: it shares no code path with the API beyond the broker contract.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	amqp "github.com/rabbitmq/amqp091-go"

	"taskflow/backend/internal/api"
	"taskflow/backend/internal/config"
	"taskflow/backend/internal/logging"
	"taskflow/backend/internal/rabbit"
)

const metadataQueue = "metadata-que"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("configuration loading failed: %v", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting workflow metadata service", "environment", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := rabbit.Connect(cfg.RabbitURL)
	if err != nil {
		logger.Error("broker connection failed", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	consumer, err := rabbit.NewConsumer(
		rabbit.NewConnectionChannelProvider(conn),
		rabbit.ConsumerConfig{
			ExchangeName: api.CreateWorkflowExchange,
			QueueName:    metadataQueue,
			ExchangeType: rabbit.ExchangeFanout,
			Durable:      true,
			Exclusive:    true,
		},
		logger,
	)
	if err != nil {
		logger.Error("consumer setup failed", "error", err)
		os.Exit(1)
	}

	tag, err := consumer.Start(ctx, func(_ context.Context, msg amqp.Delivery) error {
		return recordMetadata(logger, msg.Body)
	})
	if err != nil {
		logger.Error("consumer start failed", "error", err)
		os.Exit(1)
	}
	logger.Info("listening for workflow creation events",
		"queue", metadataQueue, "consumer_tag", tag)

	// Small health surface so orchestrators can probe the process.
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("health server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	if err := e.Shutdown(context.Background()); err != nil {
		logger.Error("health server shutdown error", "error", err)
	}
	logger.Info("metadata service stopped gracefully")
}

// recordMetadata unpacks a creation event and logs the definition's
// identifying metadata. A decode failure is returned so the delivery is
// rejected and logged rather than acknowledged as handled.
func recordMetadata(logger *logging.Logger, body []byte) error {
	var envelope rabbit.Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode creation event: %w", err)
	}

	steps := 0
	if raw, ok := envelope.Data["workflow"].([]any); ok {
		steps = len(raw)
	}
	logger.Info("workflow created",
		"workflow_id", envelope.Data["id"],
		"tenant_id", envelope.Data["tenant_id"],
		"steps", steps)
	return nil
}
