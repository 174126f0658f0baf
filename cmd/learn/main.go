// Command learn runs a single learning pass over the trade ledger and
// prints the resulting summary as JSON. It is the batch counterpart of the
// scheduler inside the server, useful for backfills and manual review.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"short-options-loop/internal/config"
	"short-options-loop/internal/experiment"
	"short-options-loop/internal/learning"
	"short-options-loop/internal/optimizer"
	"short-options-loop/internal/pattern"
	"short-options-loop/internal/stats"
	"short-options-loop/internal/storage/migrations"
	"short-options-loop/internal/storage/postgres"
)

func main() {
	envFile := flag.String("env", ".env", "path to env file (optional)")
	window := flag.Duration("window", 0, "evaluation window (default: LEARN_WINDOW)")
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags|log.LUTC)

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if *window <= 0 {
		*window = cfg.LearnWindow
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := run(ctx, cfg, *window, logger); err != nil {
		logger.Fatalf("learn: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, window time.Duration, logger *log.Logger) error {
	pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}

	trades := postgres.NewTradeStore(pool)
	configs := postgres.NewConfigVersionStore(pool)
	experiments := postgres.NewExperimentStore(pool)
	events := postgres.NewLearningEventStore(pool)

	active, err := configs.Latest(ctx)
	if err != nil {
		return fmt.Errorf("load config version: %w", err)
	}

	validator := stats.NewValidator(stats.Config{
		MinSamples:    active.Params.MinSamplesForLearning,
		Alpha:         active.Params.SignificanceAlpha,
		MinEffectSize: active.Params.MinEffectSize,
	})

	detector := pattern.NewDetector(trades, postgres.NewPatternStore(pool), events, validator, logger)
	engine := experiment.NewEngine(experiments, trades, events, validator, cfg.AllocationSeed, logger)
	opt := optimizer.NewOptimizer(configs, events, logger)
	runner := learning.NewRunner(detector, engine, opt, configs, events, logger)

	summary, err := runner.Run(ctx, window)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
