package main

import (
	"io"
	"loan-simulator/internal/config"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAMQPURI(t *testing.T) {
	assert.Equal(t, "amqp://guest:secret@mq:5672/",
		amqpURI(config.RabbitMQConfig{Host: "mq", Port: 5672, Username: "guest", Password: "secret"}))
	assert.Equal(t, "amqp://mq:5672/", amqpURI(config.RabbitMQConfig{Host: "mq", Port: 5672}))
}

func TestConnectRabbitMQRequiresHost(t *testing.T) {
	_, err := connectRabbitMQ(config.RabbitMQConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorContains(t, err, "not configured")
}

func TestMetricsServer(t *testing.T) {
	cfg := &config.Config{Notifier: config.NotifierConfig{Port: 8090}}
	srv := metricsServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, ":8090", srv.Addr)
}
