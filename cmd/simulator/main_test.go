package main

import (
	"fmt"
	"io"
	"loan-simulator/internal/config"
	"log/slog"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitializeApp(t *testing.T) {
	cfg, log := initializeApp()

	assert.NotNil(t, cfg, "Config should not be nil")
	assert.NotNil(t, log, "Logger should not be nil")
}

func TestInitializeCalculator(t *testing.T) {
	t.Run("should use the engine without a url", func(t *testing.T) {
		cfg := &config.Config{Calculator: config.CalculatorConfig{
			FixedAnnualRate: "0.15", InitialAnnualRate: "0.12", VariableAnnualRate: "0.18",
		}}
		assert.Equal(t, "*amortization.Engine", typeName(initializeCalculator(cfg, discardLogger())))
	})

	t.Run("should use the remote client with a url", func(t *testing.T) {
		cfg := &config.Config{Calculator: config.CalculatorConfig{URL: "http://localhost:5000", Timeout: time.Second}}
		assert.Equal(t, "*calculator.Client", typeName(initializeCalculator(cfg, discardLogger())))
	})
}

func TestInitializeNotifier(t *testing.T) {
	n := initializeNotifier(&config.Config{}, nil, discardLogger())
	assert.Equal(t, "*event.LogPublisher", typeName(n))
}

func TestWorkflowSettings(t *testing.T) {
	s := workflowSettings(config.WorkflowConfig{
		ApprovalDelay: 3 * time.Second,
		PlanDelay:     1500 * time.Millisecond,
		MinTermYears:  1,
		MaxTermYears:  30,
	})
	assert.Equal(t, 3*time.Second, s.ApprovalDelay)
	assert.True(t, s.TermLimits.MaxYears.Equal(decimal.NewFromInt(30)))
}

func TestRabbitMQURI(t *testing.T) {
	uri, err := rabbitMQURI(config.RabbitMQConfig{Host: "mq", Port: 5672, Username: "guest", Password: "guest"})
	require.NoError(t, err)
	assert.Equal(t, "amqp://guest:guest@mq:5672", uri)

	uri, err = rabbitMQURI(config.RabbitMQConfig{Host: "mq"})
	require.NoError(t, err)
	assert.Equal(t, "amqp://mq:5672", uri)

	_, err = rabbitMQURI(config.RabbitMQConfig{})
	assert.Error(t, err)
	_, err = rabbitMQURI(config.RabbitMQConfig{Host: "mq", Username: "guest"})
	assert.Error(t, err)
}

func TestInitializeRedisClientWithoutAddr(t *testing.T) {
	assert.Nil(t, initializeRedisClient(&config.Config{}, discardLogger()))
}

func TestStartServer(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:         18080,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  5 * time.Second,
		},
	}
	srv, serverErrors, shutdownChan := startServer(cfg, http.NewServeMux(), discardLogger())

	assert.NotNil(t, srv, "Server should not be nil")
	assert.NotNil(t, serverErrors, "Server errors channel should not be nil")
	assert.NotNil(t, shutdownChan, "Shutdown channel should not be nil")
	shutdownHTTPServer(srv, serverErrors, discardLogger())
}

func TestHandleShutdown(t *testing.T) {
	cronScheduler := cron.New()
	srv := &http.Server{}
	shutdownChan := make(chan os.Signal, 1)
	serverErrors := make(chan error, 1)

	go func() {
		shutdownChan <- syscall.SIGINT
	}()

	handleShutdown(srv, cronScheduler, nil, nil, shutdownChan, serverErrors, discardLogger())
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
