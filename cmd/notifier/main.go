package main

import (
	"context"
	"errors"
	"fmt"
	"loan-simulator/internal/config"
	"loan-simulator/internal/event"
	"loan-simulator/internal/infrastructure/logging"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumes lifecycle events from the simulator's exchange and notifies the
// account holder.
func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rabbitConn, err := connectRabbitMQ(cfg.RabbitMQ, logger)
	if err != nil {
		logger.Error("Failed to connect to RabbitMQ", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeRabbitMQ(rabbitConn, logger)

	consumer, err := setupConsumer(rabbitConn, cfg, logger)
	if err != nil {
		logger.Error("Failed to create RabbitMQ consumer", slog.Any("error", err))
		os.Exit(1)
	}
	if err := consumer.Start(ctx); err != nil {
		logger.Error("Failed to start RabbitMQ consumer", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Consumer started successfully. Waiting for events or shutdown signal...")

	server := metricsServer(cfg, logger)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start HTTP server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received. Initiating graceful shutdown...")
	consumer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", slog.Any("error", err))
	}
	logger.Info("Notifier shut down gracefully.")
}

func metricsServer(cfg *config.Config, logger *slog.Logger) *http.Server {
	metricsPath := cfg.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	logger.Info("Setting up Prometheus metrics endpoint", "path", metricsPath, "port", cfg.Notifier.Port)
	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.Handler())
	return &http.Server{Addr: fmt.Sprintf(":%d", cfg.Notifier.Port), Handler: mux}
}

func setupConsumer(rabbitConn *amqp.Connection, cfg *config.Config, logger *slog.Logger) (*event.Consumer, error) {
	ch, err := rabbitConn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}
	handler := event.NewNotificationHandler(event.NewLogSender(logger), logger)
	return event.NewConsumer(
		ch,
		cfg.RabbitMQ.ExchangeName,
		cfg.Notifier.QueueName,
		cfg.Notifier.ConsumerTag,
		event.LifecycleRoutingKeys,
		handler.HandleDelivery,
		logger,
	)
}

func amqpURI(cfg config.RabbitMQConfig) string {
	if cfg.Username == "" {
		return fmt.Sprintf("amqp://%s:%d/", cfg.Host, cfg.Port)
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", cfg.Username, cfg.Password, cfg.Host, cfg.Port)
}

func connectRabbitMQ(cfg config.RabbitMQConfig, logger *slog.Logger) (*amqp.Connection, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("RabbitMQ host is not configured")
	}
	logger.Info("Connecting to RabbitMQ", "host", cfg.Host, "port", cfg.Port)

	conn, err := amqp.Dial(amqpURI(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	logger.Info("RabbitMQ connection established.")

	go func() {
		errChan := conn.NotifyClose(make(chan *amqp.Error))
		if err := <-errChan; err != nil {
			logger.Error("RabbitMQ connection closed unexpectedly", slog.Any("error", err))
		}
	}()

	return conn, nil
}

func closeRabbitMQ(rabbitConn *amqp.Connection, logger *slog.Logger) {
	logger.Info("Closing RabbitMQ connection...")
	if err := rabbitConn.Close(); err != nil {
		logger.Error("Error closing RabbitMQ connection", slog.Any("error", err))
	}
}
