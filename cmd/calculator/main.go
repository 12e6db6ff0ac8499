package main

import (
	"context"
	"errors"
	"fmt"
	"loan-simulator/internal/amortization"
	"loan-simulator/internal/api"
	"loan-simulator/internal/config"
	"loan-simulator/internal/infrastructure/logging"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Standalone amortization service answering POST /api/calculate. The simulator
// talks to it when calculator.url is set.
func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.Logger)

	rates, err := amortization.ParseRates(cfg.Calculator.FixedAnnualRate, cfg.Calculator.InitialAnnualRate, cfg.Calculator.VariableAnnualRate)
	if err != nil {
		logger.Error("Invalid calculator rates", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router := api.SetupCalculatorRouter(ctx, amortization.NewEngine(rates, logger), cfg, logger)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Calculator.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	if err := run(ctx, srv, logger); err != nil {
		logger.Error("Calculation service stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Calculation service listening", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("Shutdown signal received.")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("Calculation service stopped.")
	return nil
}
