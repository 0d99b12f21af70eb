package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/amazon-finance-sync/internal/domain"
	"github.com/dvloznov/amazon-finance-sync/internal/logger"
)

// EventSource produces raw event envelopes for a posted-date window.
type EventSource interface {
	FetchFinancialEvents(ctx context.Context, start, end time.Time) ([]domain.RawEvent, error)
}

// TransactionStore persists canonical transactions and run bookkeeping.
type TransactionStore interface {
	InsertTransactions(ctx context.Context, txs []domain.Transaction) (domain.LoadResult, error)
	SummarizeBySKU(ctx context.Context) ([]domain.SKUSummary, error)
	StartSyncRun(ctx context.Context, windowStart, windowEnd time.Time) (string, error)
	MarkSyncRunSucceeded(ctx context.Context, runID string, counts domain.RunCounts) error
	MarkSyncRunFailed(ctx context.Context, runID string, runErr error) error
}

// Archiver stores the raw envelopes of a run for replay/debugging.
type Archiver interface {
	ArchiveRawEvents(ctx context.Context, runID string, events []domain.RawEvent) error
}

// Mirror receives the records newly persisted by a run.
type Mirror interface {
	MirrorTransactions(ctx context.Context, runID string, txs []domain.Transaction) error
}

// Runner executes one fetch → normalize → load → summarize cycle.
// Archiver and Mirror are optional; nil disables them.
type Runner struct {
	Source   EventSource
	Store    TransactionStore
	Archiver Archiver
	Mirror   Mirror
}

// Result is what one run produced.
type Result struct {
	RunID   string
	Fetched int
	Stats   NormalizeStats
	Load    domain.LoadResult
	Summary []domain.SKUSummary
}

// Run executes the pipeline for the given window. It favors completing with
// partial results: fetch and load failures are logged, recorded against the
// sync run, and the report still reflects whatever was committed.
func (r *Runner) Run(ctx context.Context, windowStart, windowEnd time.Time) (*Result, error) {
	log := logger.FromContext(ctx)

	runID, err := r.Store.StartSyncRun(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("start sync run: %w", err)
	}
	res := &Result{RunID: runID}

	log.Info().Str("run_id", runID).
		Time("window_start", windowStart).Time("window_end", windowEnd).
		Msg("Starting financial event sync")

	events, err := r.Source.FetchFinancialEvents(ctx, windowStart, windowEnd)
	if err != nil {
		// The source already keeps whatever pages it could fetch; an error
		// here means even that was impossible.
		log.Error().Err(err).Msg("Event fetch failed, continuing with nothing")
	}
	res.Fetched = len(events)

	if r.Archiver != nil && len(events) > 0 {
		if err := r.Archiver.ArchiveRawEvents(ctx, runID, events); err != nil {
			log.Warn().Err(err).Msg("Raw event archival failed, continuing")
		}
	}

	txs, stats := Normalize(events)
	res.Stats = stats
	if stats.Total() > 0 {
		log.Warn().
			Int("unknown_envelopes", stats.UnknownEnvelopes).
			Int("bad_dates", stats.BadDates).
			Int("skipped_records", stats.SkippedRecords).
			Int("skipped_items", stats.SkippedItems).
			Int("skipped_charges", stats.SkippedCharges).
			Msg("Skipped malformed source data during normalization")
	}
	log.Info().Int("envelopes", len(events)).Int("transactions", len(txs)).
		Msg("Normalization complete")

	load, loadErr := r.Store.InsertTransactions(ctx, txs)
	res.Load = load
	if loadErr != nil {
		log.Error().Err(loadErr).Msg("Load failed, nothing inserted this run")
		if err := r.Store.MarkSyncRunFailed(ctx, runID, loadErr); err != nil {
			log.Warn().Err(err).Msg("Could not record run failure")
		}
	} else {
		log.Info().Int("inserted", load.Inserted).Int("duplicates", load.Duplicates).
			Int("failed", load.Failed).Msg("Load complete")

		if r.Mirror != nil && len(load.Loaded) > 0 {
			if err := r.Mirror.MirrorTransactions(ctx, runID, load.Loaded); err != nil {
				log.Warn().Err(err).Msg("Analytics mirror failed, continuing")
			}
		}

		counts := domain.RunCounts{
			Fetched:    res.Fetched,
			Normalized: len(txs),
			Skipped:    stats.Total(),
			Inserted:   load.Inserted,
			Duplicates: load.Duplicates,
			Failed:     load.Failed,
		}
		if err := r.Store.MarkSyncRunSucceeded(ctx, runID, counts); err != nil {
			log.Warn().Err(err).Msg("Could not record run success")
		}
	}

	summary, err := r.Store.SummarizeBySKU(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Summary query failed")
	}
	res.Summary = summary

	return res, nil
}
