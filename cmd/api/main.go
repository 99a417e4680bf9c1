// Package main is the entry point for the Listwright API server.
//
// It loads configuration, connects the database pool and the optional Redis
// dedupe store, builds the vendor clients, wires the generation gate and
// billing handlers onto the core chassis, and serves HTTP. Graceful shutdown
// is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"listwright/internal/api/handlers"
	"listwright/internal/billing"
	"listwright/internal/cache"
	"listwright/internal/config"
	"listwright/internal/core"
	"listwright/internal/db"
	"listwright/internal/external"
	"listwright/internal/listings"
	"listwright/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("listwright API starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Database pool.
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		return fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("creating database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("pinging database: %w", err)
	}

	store := db.NewEntitlementRepository(pool)

	// Optional webhook dedupe store. A missing or unreachable Redis degrades
	// to no deduplication rather than blocking startup.
	var deduper *cache.EventDeduper
	if cfg.Redis.Addr != "" {
		deduper, err = cache.NewEventDeduper(ctx, cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password.Unmask(),
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.EventTTL,
			Logger:   logger,
		})
		if err != nil {
			logger.Warn("redis unavailable, webhook dedupe disabled", "error", err)
			deduper = nil
		}
	}

	// Vendor clients.
	httpClient := &http.Client{Timeout: 60 * time.Second}

	generator := external.NewAnthropicClient(httpClient, external.AnthropicClientConfig{
		APIKey:  cfg.Generation.APIKey.Unmask(),
		Model:   cfg.Generation.Model,
		Timeout: cfg.Generation.Timeout,
		Logger:  logger,
	})

	payments := external.NewStripeClient(httpClient, external.StripeClientConfig{
		SecretKey: cfg.Billing.StripeSecretKey.Unmask(),
		Logger:    logger,
	})

	// Domain wiring.
	plans := billing.NewStaticPlanRegistry()
	resetter := billing.NewCycleResetter(plans)
	gate := listings.NewService(store, generator, resetter, logger)

	prices := billing.PriceTable{
		Professional: cfg.Billing.PriceIDProfessional,
		Agency:       cfg.Billing.PriceIDAgency,
		Unlimited:    cfg.Billing.PriceIDUnlimited,
	}

	// Server chassis.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.RegisterCloser(func() error { pool.Close(); return nil })
	srv.RegisterCloser(deduper.Close)

	if cfg.Metrics.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("loading AWS config: %w", err)
		}
		srv.Metrics = telemetry.NewCollector(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Metrics.Namespace,
			logger,
		)
	}

	srv.HealthProbes = append(srv.HealthProbes, core.ProbeFunc{
		ProbeName: "database",
		Fn:        pool.Ping,
	})
	if deduper != nil {
		srv.HealthProbes = append(srv.HealthProbes, core.ProbeFunc{
			ProbeName: "redis",
			Fn:        deduper.Ping,
		})
	}

	// Handlers.
	listingsHandler := handlers.NewListingsHandler(gate, srv.Validator, logger)
	billingHandler := handlers.NewBillingHandler(payments, store, srv.Validator, cfg.Server.AppURL, logger)
	webhookHandler := handlers.NewStripeWebhookHandler(
		&external.StripeVerifier{},
		store,
		deduper,
		prices,
		cfg.Billing.StripeWebhookSecret.Unmask(),
		logger,
	)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		listingsHandler.RegisterRoutes,
		billingHandler.RegisterRoutes,
	)

	srv.MountRoutes()

	// The webhook endpoint lives outside /v1 and outside the identity
	// middleware's expectations; it is mounted at the router root.
	srv.Router().Group(func(r chi.Router) {
		webhookHandler.RegisterRoutes(r)
	})

	return runHTTPServer(srv, cfg, logger)
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
