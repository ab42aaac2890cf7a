// Package pipeline contains the background data-maintenance jobs: archival
// of aged ticks to cold storage and retention trimming of the hot tables.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lmoura/cryptopilot/internal/domain"
)

// Retention trims aged rows from the hot Postgres tables, optionally
// archiving ticks to S3 first.
type Retention struct {
	ticks         domain.TickStore
	candles       domain.CandleStore
	archiver      domain.Archiver
	retentionDays int
	logger        *slog.Logger
}

// NewRetention creates a new Retention job. archiver may be nil, in which
// case aged rows are trimmed without a cold-storage copy.
func NewRetention(
	ticks domain.TickStore,
	candles domain.CandleStore,
	archiver domain.Archiver,
	retentionDays int,
	logger *slog.Logger,
) *Retention {
	return &Retention{
		ticks:         ticks,
		candles:       candles,
		archiver:      archiver,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "retention")),
	}
}

// Run executes a single retention pass. The cutoff is retentionDays before
// now; ticks older than the cutoff are archived (when an archiver is
// configured) and then deleted along with aged candles. If the archive
// upload fails the pass aborts before any rows are removed.
func (r *Retention) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(r.retentionDays) * 24 * time.Hour)
	r.logger.Info("starting retention pass",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", r.retentionDays),
	)

	if r.archiver != nil {
		archived, err := r.archiver.ArchiveTicks(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("pipeline: archiving ticks before %v: %w", cutoff, err)
		}
		r.logger.Info("archived ticks", slog.Int64("count", archived))
	}

	ticksTrimmed, err := r.ticks.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: trimming ticks before %v: %w", cutoff, err)
	}

	candlesTrimmed, err := r.candles.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: trimming candles before %v: %w", cutoff, err)
	}

	r.logger.Info("retention pass complete",
		slog.Int64("ticks_trimmed", ticksTrimmed),
		slog.Int64("candles_trimmed", candlesTrimmed),
	)

	return nil
}

// RunCron runs the retention job on a cron schedule until the context is
// cancelled. It supports cron expressions in the standard 5-field format:
// "minute hour day-of-month month day-of-week"
//
// Example: "0 3 * * *" runs at 3:00 AM every day.
func (r *Retention) RunCron(ctx context.Context, cronExpr string) error {
	r.logger.Info("retention cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("pipeline: parsing cron expression %q: %w", cronExpr, err)
		}

		waitDuration := time.Until(next)
		r.logger.Info("retention waiting for next cron trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", waitDuration),
		)

		timer := time.NewTimer(waitDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info("retention cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := r.Run(ctx); err != nil {
				r.logger.Error("retention pass failed", slog.String("error", err.Error()))
			}
		}
	}
}
