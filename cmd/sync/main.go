package main

import (
	"context"
	"os"
	"time"

	"github.com/dvloznov/amazon-finance-sync/internal/analytics"
	"github.com/dvloznov/amazon-finance-sync/internal/config"
	"github.com/dvloznov/amazon-finance-sync/internal/infra/postgres"
	"github.com/dvloznov/amazon-finance-sync/internal/logger"
	"github.com/dvloznov/amazon-finance-sync/internal/pipeline"
	"github.com/dvloznov/amazon-finance-sync/internal/rawarchive"
	"github.com/dvloznov/amazon-finance-sync/internal/report"
	"github.com/dvloznov/amazon-finance-sync/internal/spapi"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	// Create context with timeout so the sync doesn't hang on a stuck API
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	// Add logger to context
	ctx = logger.WithContext(ctx, log)

	store, err := postgres.Connect(ctx, cfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Schema setup failed")
	}

	windowEnd := time.Now().UTC()
	windowStart := windowEnd.AddDate(0, 0, -cfg.SyncWindowDays)

	runner := &pipeline.Runner{
		Source: spapi.NewClient(cfg),
		Store:  store,
	}

	if cfg.ArchiveBucket != "" {
		runner.Archiver = rawarchive.New(cfg.ArchiveBucket)
	}

	if cfg.MirrorEnabled() {
		mirror, err := analytics.New(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
		if err != nil {
			log.Warn().Err(err).Msg("Analytics mirror unavailable, continuing without it")
		} else {
			defer mirror.Close()
			runner.Mirror = mirror
		}
	}

	res, err := runner.Run(ctx, windowStart, windowEnd)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync run failed")
	}

	report.Render(os.Stdout, res.Summary)

	log.Info().Str("run_id", res.RunID).
		Int("fetched", res.Fetched).
		Int("inserted", res.Load.Inserted).
		Int("duplicates", res.Load.Duplicates).
		Msg("Process finished")
}
