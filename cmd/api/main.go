// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/messagewise/cost-insights/internal/calculator"
	"github.com/messagewise/cost-insights/internal/classifier"
	"github.com/messagewise/cost-insights/internal/config"
	"github.com/messagewise/cost-insights/internal/handler"
	"github.com/messagewise/cost-insights/internal/ingest"
	"github.com/messagewise/cost-insights/internal/jobs"
	"github.com/messagewise/cost-insights/internal/middleware"
	natsclient "github.com/messagewise/cost-insights/internal/nats"
	"github.com/messagewise/cost-insights/internal/optimizer"
	"github.com/messagewise/cost-insights/internal/predictor"
	"github.com/messagewise/cost-insights/internal/pricing"
	"github.com/messagewise/cost-insights/internal/store/postgres"
	"github.com/messagewise/cost-insights/internal/store/redisstore"
	"github.com/messagewise/cost-insights/pkg/logger"
	"github.com/messagewise/cost-insights/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "cost-insights", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	// Connect to NATS
	natsClient, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer natsClient.Close()

	// Ensure JetStream stream exists
	streamManager := natsclient.NewStreamManager(natsClient)
	if err := streamManager.EnsureStream(ctx); err != nil {
		log.Error("failed to ensure stream", zap.Error(err))
		os.Exit(1)
	}

	// Connect to Postgres
	dbCtx, dbCancel := context.WithTimeout(ctx, 10*time.Second)
	defer dbCancel()
	dbpool, err := pgxpool.New(dbCtx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to create database pool", zap.Error(err))
		os.Exit(1)
	}
	defer dbpool.Close()

	db := postgres.New(dbpool)
	if err := db.Migrate(dbCtx); err != nil {
		log.Error("failed to apply schema", zap.Error(err))
		os.Exit(1)
	}

	// Connect to Redis
	idem, err := redisstore.New(cfg.RedisURL)
	if err != nil {
		log.Error("failed to create redis client", zap.Error(err))
		os.Exit(1)
	}
	defer idem.Close()

	// Domain components
	table := pricing.DefaultTable()
	calc := calculator.New(table)
	cls := classifier.New()
	opt := optimizer.New(table)
	pred := predictor.New(table)

	// Ingestion pipeline and stream consumer
	pipeline := ingest.New(db, idem, cls, table, cfg.DefaultCountry, log)
	consumer := ingest.NewConsumer(streamManager, pipeline, log)
	go func() {
		if err := consumer.Start(ctx); err != nil {
			log.Error("consumer stopped", zap.Error(err))
			stop()
		}
	}()

	// Rollup job
	rollup := jobs.NewRollup(db, db, calc, table, cfg.DefaultCountry, log)
	if cfg.RollupEnabled {
		go rollup.Start(ctx)
	}

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsClient, db, idem)
	webhookHandler := handler.NewWebhookHandler(streamManager, cfg.WebhookVerifyToken, log)
	analyticsHandler := handler.NewAnalyticsHandler(db, calc, opt, pred, rollup, cfg.DefaultCountry, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Webhook endpoints: the channel authenticates with the verify token,
	// not a JWT.
	r.Route("/webhook", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests*10, cfg.RateLimitWindow))
		r.Get("/", webhookHandler.Verify)
		r.Post("/", webhookHandler.Receive)
	})

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/analytics", func(r chi.Router) {
			r.Use(middleware.RequireScope(middleware.ScopeAnalyticsRead))

			r.Get("/breakdown", analyticsHandler.Breakdown)
			r.Get("/daily", analyticsHandler.Daily)
			r.Get("/compare", analyticsHandler.Compare)
			r.Get("/savings", analyticsHandler.Savings)
			r.Get("/monthly-estimate", analyticsHandler.MonthlyEstimate)
		})

		r.Route("/insights", func(r chi.Router) {
			r.Use(middleware.RequireScope(middleware.ScopeInsightsRead))

			r.Get("/recommendations", analyticsHandler.Recommendations)
			r.Get("/score", analyticsHandler.Score)
			r.Get("/predict", analyticsHandler.Predict)
			r.Get("/forecast", analyticsHandler.Forecast)
			r.Get("/roi/{plan}", analyticsHandler.PlanROI)
			r.Get("/impact/{category}", analyticsHandler.Impact)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
