package api

import (
	"context"
	"loan-simulator/internal/api/handler"
	mw "loan-simulator/internal/api/middleware"
	"loan-simulator/internal/config"
	"loan-simulator/internal/domain/loan"
	"loan-simulator/internal/domain/workflow"
	"log/slog"
	"net/http"
	"time"

	_ "loan-simulator/docs"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/traceid"
	"github.com/redis/go-redis/v9"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

const requestTimeout = 60 * time.Second

// SetupRouter builds the simulator API. A nil redisClient selects the
// in-process rate limiter.
func SetupRouter(ctx context.Context, svc workflow.WorkflowService, cfg *config.Config, redisClient redis.Cmdable, logger *slog.Logger) *chi.Mux {
	router := chi.NewRouter()

	setupMiddleware(ctx, router, cfg, redisClient, logger)
	setupMetricsEndpoint(router, cfg, logger)
	setupSessionRoutes(router, svc, logger)
	router.Get("/health", handler.Health)
	setupSwaggerEndpoint(router, logger)

	return router
}

// SetupCalculatorRouter builds the standalone calculation service.
func SetupCalculatorRouter(ctx context.Context, calc loan.Calculator, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	router := chi.NewRouter()

	setupMiddleware(ctx, router, cfg, nil, logger)
	setupMetricsEndpoint(router, cfg, logger)
	h := handler.NewCalculationHandler(calc, logger)
	router.Post("/api/calculate", h.Calculate)
	router.Get("/health", handler.Health)

	return router
}

func setupMiddleware(ctx context.Context, router *chi.Mux, cfg *config.Config, redisClient redis.Cmdable, logger *slog.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(traceid.Middleware)
	router.Use(mw.StructuredLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(middleware.Timeout(requestTimeout))
	if redisClient != nil {
		router.Use(mw.NewRedisRateLimiterMiddleware(cfg.Server.RateLimit, redisClient, logger).Middleware)
	} else {
		router.Use(mw.NewRateLimiterMiddleware(ctx, cfg.Server.RateLimit, logger).Middleware)
	}
	router.Use(mw.MetricsMiddleware())
}

func setupMetricsEndpoint(router *chi.Mux, cfg *config.Config, logger *slog.Logger) {
	metricsPath := cfg.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	logger.Info("Setting up Prometheus metrics endpoint", "path", metricsPath)
	router.Handle(metricsPath, promhttp.Handler())
}

func setupSwaggerEndpoint(router *chi.Mux, logger *slog.Logger) {
	logger.Info("Setting up Swagger UI endpoint", "path", "/swagger/")
	router.Get("/swagger/*", httpSwagger.WrapHandler)
	router.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger/index.html", http.StatusMovedPermanently)
	})
}

func setupSessionRoutes(router *chi.Mux, svc workflow.WorkflowService, logger *slog.Logger) {
	h := handler.NewSessionHandler(svc, logger)

	router.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.DeleteSession)
			r.Post("/request", h.SubmitRequest)
			r.Post("/modify", h.ModifyRequest)
			r.Post("/accept", h.AcceptLoan)
			r.Post("/reset", h.ResetSession)
			r.Post("/installments/{index}/pay", h.PayInstallment)
		})
	})
}
