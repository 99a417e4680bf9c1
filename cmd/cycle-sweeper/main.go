// Package main is the entrypoint for the cycle sweeper job.
//
// The sweeper runs daily via an EventBridge rule. It scans for entitlement
// records whose billing cycle started 30 or more days ago and refreshes
// their credit allotments, catching the dormant users the lazy per-request
// reset never sees.
//
// In Lambda mode (AWS_LAMBDA_RUNTIME_API set) it registers with the runtime;
// locally it executes one sweep and exits, which also serves as the manual
// backfill path.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/jackc/pgx/v5/pgxpool"

	"listwright/internal/billing"
	"listwright/internal/config"
	"listwright/internal/db"
	"listwright/internal/scheduler"
	"listwright/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("cycle sweeper initializing")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	pool, err := newPool(ctx, cfg)
	cancel()
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := db.NewEntitlementRepository(pool)
	resetter := billing.NewCycleResetter(billing.NewStaticPlanRegistry())
	sweeper := scheduler.NewCycleSweeper(store, resetter, logger)

	var metrics *telemetry.Collector
	if cfg.Metrics.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		metrics = telemetry.NewCollector(cloudwatch.NewFromConfig(awsCfg), cfg.Metrics.Namespace, logger)
	}

	handler := func(ctx context.Context, raw json.RawMessage) (scheduler.SweepResult, error) {
		payload, err := scheduler.ParsePayload(raw)
		if err != nil {
			return scheduler.SweepResult{}, fmt.Errorf("parsing sweep payload: %w", err)
		}

		result, err := sweeper.Run(ctx, payload)
		if err != nil {
			return result, err
		}

		if metrics != nil {
			metrics.RecordSweep(ctx, result.Reset)
		}
		return result, nil
	}

	if isLambdaEnvironment() {
		lambda.Start(handler)
		return
	}

	// Local one-shot execution.
	result, err := handler(context.Background(), nil)
	if err != nil {
		logger.Error("sweep failed", "error", err)
		os.Exit(1)
	}
	logger.Info("sweep finished",
		"scanned", result.Scanned,
		"reset", result.Reset,
		"failed", result.Failed,
	)
}

// isLambdaEnvironment reports whether the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, ok := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	return ok
}

// newPool builds the pgx connection pool from configuration.
func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}
