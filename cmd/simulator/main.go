package main

import (
	"context"
	"errors"
	"fmt"
	"loan-simulator/internal/amortization"
	"loan-simulator/internal/api"
	"loan-simulator/internal/batch"
	"loan-simulator/internal/config"
	"loan-simulator/internal/domain/loan"
	"loan-simulator/internal/domain/workflow"
	"loan-simulator/internal/event"
	"loan-simulator/internal/infrastructure/calculator"
	"loan-simulator/internal/infrastructure/logging"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

const shutdownTimeout = 15 * time.Second

// @title Loan Simulator API
// @version 1.0
// @description Loan request workflow: form, confirmation, processing, approval and payment plan tracking.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
func main() {
	cfg, logger := initializeApp()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calc := initializeCalculator(cfg, logger)
	rabbitMQConn, err := setupRabbitMQ(cfg, logger)
	if err != nil {
		logger.Warn("RabbitMQ unavailable, lifecycle events will only be logged", "error", err)
	}
	notifier := initializeNotifier(cfg, rabbitMQConn, logger)
	redisClient := initializeRedisClient(cfg, logger)

	service := initializeWorkflow(cfg, calc, notifier, logger)
	cronScheduler := startBatchJobs(cfg, service, notifier, logger)

	var limiterStore redis.Cmdable
	if redisClient != nil {
		limiterStore = redisClient
	}
	router := api.SetupRouter(ctx, service, cfg, limiterStore, logger)

	srv, serverErrors, shutdownChan := startServer(cfg, router, logger)
	handleShutdown(srv, cronScheduler, rabbitMQConn, redisClient, shutdownChan, serverErrors, logger)
}

func initializeApp() (*config.Config, *slog.Logger) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Logger)
	logger.Info("Application starting...", "config_source", cfg.Source)

	return cfg, logger
}

// initializeCalculator returns the remote calculation client when a URL is
// configured, otherwise the in-process engine.
func initializeCalculator(cfg *config.Config, logger *slog.Logger) loan.Calculator {
	if cfg.Calculator.URL != "" {
		logger.Info("Using remote calculation service", "url", cfg.Calculator.URL, "timeout", cfg.Calculator.Timeout)
		return calculator.NewClient(cfg.Calculator.URL, cfg.Calculator.Timeout, logger)
	}

	rates, err := amortization.ParseRates(cfg.Calculator.FixedAnnualRate, cfg.Calculator.InitialAnnualRate, cfg.Calculator.VariableAnnualRate)
	if err != nil {
		logger.Error("Invalid calculator rates", "error", err)
		os.Exit(1)
	}
	logger.Info("Using in-process amortization engine",
		"fixed", rates.Fixed.String(), "initial", rates.Initial.String(), "variable", rates.Variable.String())
	return amortization.NewEngine(rates, logger)
}

func initializeNotifier(cfg *config.Config, rabbitConn *amqp.Connection, logger *slog.Logger) workflow.Notifier {
	if rabbitConn == nil {
		return event.NewLogPublisher(logger)
	}
	publisher, err := event.NewRabbitMQEventPublisher(event.AMQPConnection{Connection: rabbitConn}, cfg.RabbitMQ.ExchangeName, logger)
	if err != nil {
		logger.Warn("Failed to set up RabbitMQ publisher, falling back to log publisher", "error", err)
		return event.NewLogPublisher(logger)
	}
	return publisher
}

func workflowSettings(cfg config.WorkflowConfig) workflow.Settings {
	return workflow.Settings{
		ApprovalDelay: cfg.ApprovalDelay,
		PlanDelay:     cfg.PlanDelay,
		TermLimits: loan.TermLimits{
			MinYears: decimal.NewFromFloat(cfg.MinTermYears),
			MaxYears: decimal.NewFromFloat(cfg.MaxTermYears),
		},
	}
}

func initializeWorkflow(cfg *config.Config, calc loan.Calculator, notifier workflow.Notifier, logger *slog.Logger) workflow.WorkflowService {
	logger.Info("Initializing application components...")
	settings := workflowSettings(cfg.Workflow)
	scheduler := workflow.NewRealScheduler()
	registry := workflow.NewRegistry(func(id string) *workflow.Controller {
		return workflow.NewController(id, calc, settings,
			workflow.WithScheduler(scheduler),
			workflow.WithNotifier(notifier),
			workflow.WithLogger(logger),
		)
	}, time.Now)
	return workflow.NewWorkflowService(registry, logger)
}

func startBatchJobs(cfg *config.Config, svc workflow.WorkflowService, notifier workflow.Notifier, logger *slog.Logger) *cron.Cron {
	window := time.Duration(cfg.Batch.ReminderWindowDays) * 24 * time.Hour
	c := batch.NewScheduler([]batch.Scheduled{
		{Spec: cfg.Batch.SessionSweepSchedule, Job: batch.NewSessionSweepJob(svc, cfg.Workflow.SessionTTL, logger)},
		{Spec: cfg.Batch.PaymentReminderSchedule, Job: batch.NewPaymentReminderJob(svc, notifier, window, logger)},
	}, cfg.Batch.JobTimeout, logger)

	c.Start()
	logger.Info("Cron scheduler started.")
	return c
}

func startServer(cfg *config.Config, router http.Handler, logger *slog.Logger) (*http.Server, <-chan error, <-chan os.Signal) {
	logger.Info("Setting up HTTP server...", "port", cfg.Server.Port)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("Server listening on port %d", cfg.Server.Port))
		err := srv.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			serverErrors <- err
		} else {
			logger.Info("Server closed gracefully.")
			serverErrors <- nil
		}
	}()
	return srv, serverErrors, shutdownChan
}

func handleShutdown(srv *http.Server, cronScheduler *cron.Cron, rabbitConn *amqp.Connection, redisClient *redis.Client,
	shutdownChan <-chan os.Signal, serverErrors <-chan error, logger *slog.Logger) {
	logger.Info("Shutdown handler started. Waiting for signal or server error...")

	triggerReason := waitForShutdownTrigger(shutdownChan, serverErrors, logger)

	logger.Info("Starting graceful shutdown...", "trigger", triggerReason)

	batch.Stop(cronScheduler, shutdownTimeout, logger)
	shutdownHTTPServer(srv, serverErrors, logger)
	closeRabbitMQConnection(rabbitConn, logger)
	closeRedisClient(redisClient, logger)

	logger.Info("Application shutdown process complete.")
}

func waitForShutdownTrigger(shutdownChan <-chan os.Signal, serverErrors <-chan error, logger *slog.Logger) string {
	select {
	case sig := <-shutdownChan:
		logger.Info("Shutdown signal received.", "signal", sig.String())
		return "signal: " + sig.String()
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server exited unexpectedly before signal", "error", err)
			os.Exit(1)
		}
		logger.Info("Server goroutine finished before signal.", "error", err)
		return "server exited"
	}
}

func closeRabbitMQConnection(rabbitConn *amqp.Connection, logger *slog.Logger) {
	if rabbitConn == nil {
		logger.Info("RabbitMQ connection was not established, skipping close.")
		return
	}
	if rabbitConn.IsClosed() {
		logger.Info("RabbitMQ connection already closed, skipping close.")
		return
	}
	logger.Info("Closing RabbitMQ connection...")
	if err := rabbitConn.Close(); err != nil {
		logger.Error("Failed to close RabbitMQ connection gracefully", slog.Any("error", err))
	} else {
		logger.Info("RabbitMQ connection closed.")
	}
}

func shutdownHTTPServer(srv *http.Server, serverErrors <-chan error, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server graceful shutdown failed", "error", err)
		if err := srv.Close(); err != nil {
			logger.Error("HTTP server forced close failed", "error", err)
		}
	} else {
		logger.Info("HTTP server gracefully stopped.")
	}

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Server goroutine exited with unexpected error after shutdown", "error", err)
		}
	case <-time.After(5 * time.Second):
		logger.Warn("Timed out waiting for server goroutine confirmation.")
	}
}

// initializeRedisClient returns nil when Redis is not configured or not
// reachable; the router then limits requests in process.
func initializeRedisClient(cfg *config.Config, logger *slog.Logger) *redis.Client {
	if cfg.Redis.Addr == "" {
		logger.Info("Redis address not configured, using in-memory rate limiting.")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if status := rdb.Ping(ctx); status.Err() != nil {
		logger.Warn("Failed to connect to Redis, using in-memory rate limiting", "error", status.Err(), "addr", cfg.Redis.Addr)
		_ = rdb.Close()
		return nil
	}

	logger.Info("Redis client connected successfully.", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
	return rdb
}

func closeRedisClient(redisClient *redis.Client, logger *slog.Logger) {
	if redisClient == nil {
		return
	}
	logger.Info("Closing Redis client connection...")
	if err := redisClient.Close(); err != nil {
		logger.Error("Failed to close Redis client connection gracefully", "error", err)
	}
}

func rabbitMQURI(cfg config.RabbitMQConfig) (string, error) {
	if cfg.Host == "" {
		return "", fmt.Errorf("RabbitMQ host is not configured")
	}
	if (cfg.Username == "") != (cfg.Password == "") {
		return "", fmt.Errorf("RabbitMQ username and password must be provided together")
	}
	port := cfg.Port
	if port == 0 {
		port = 5672
	}
	if cfg.Username != "" {
		return fmt.Sprintf("amqp://%s:%s@%s:%d", cfg.Username, cfg.Password, cfg.Host, port), nil
	}
	return fmt.Sprintf("amqp://%s:%d", cfg.Host, port), nil
}

func connectRabbitMQ(uri string, logger *slog.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	retryCount := 5
	for i := 1; i <= retryCount; i++ {
		conn, err = amqp.Dial(uri)
		if err == nil {
			logger.Info("Successfully connected to RabbitMQ")

			go func() {
				blockChan := conn.NotifyBlocked(make(chan amqp.Blocking))
				closeChan := conn.NotifyClose(make(chan *amqp.Error))

				select {
				case b := <-blockChan:
					logger.Warn("RabbitMQ Connection Blocked", "reason", b.Reason)
				case e := <-closeChan:
					logger.Error("RabbitMQ Connection Closed", slog.Any("error", e))
				}
			}()

			return conn, nil
		}
		logger.Warn("Failed to connect to RabbitMQ, retrying...",
			slog.Int("attempt", i),
			slog.Int("max_attempts", retryCount),
			slog.Any("error", err),
		)
		time.Sleep(time.Duration(i*2) * time.Second)
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", retryCount, err)
}

func setupRabbitMQ(cfg *config.Config, logger *slog.Logger) (*amqp.Connection, error) {
	uri, err := rabbitMQURI(cfg.RabbitMQ)
	if err != nil {
		return nil, err
	}
	return connectRabbitMQ(uri, logger)
}
