package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"collective-ledger/internal/domain"
	"collective-ledger/internal/domain/ports/usecase"
)

// BillingWorker triggers a billing run on every tick. Overlapping runs across
// replicas are prevented by the run lock inside the runner.
type BillingWorker struct {
	interval   time.Duration
	runner     usecase.BillingRunner
	runOnStart bool
	now        func() time.Time
	log        *zerolog.Logger
}

func NewBillingWorker(interval time.Duration, runner usecase.BillingRunner, runOnStart bool, logger *zerolog.Logger) *BillingWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	l := logger.With().Str("component", "BillingWorker").Logger()
	return &BillingWorker{
		interval:   interval,
		runner:     runner,
		runOnStart: runOnStart,
		now:        func() time.Time { return time.Now().UTC() },
		log:        &l,
	}
}

func (w *BillingWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting billing worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	if w.runOnStart {
		w.tick(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping billing worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *BillingWorker) tick(ctx context.Context) {
	report, err := w.runner.Run(ctx, w.now())
	switch {
	case errors.Is(err, domain.ErrBillingRunInProgress):
		w.log.Debug().Msg("billing run held by another instance")
		return
	case err != nil:
		w.log.Error().Err(err).Msg("billing run failed")
		return
	}
	ev := w.log.Info()
	if report.Failed > 0 || report.Deactivated > 0 {
		ev = w.log.Warn()
	}
	ev.Str("run_id", report.RunID).
		Int("processed", report.Processed).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("deactivated", report.Deactivated).
		Int("skipped", report.Skipped).
		Dur("took", report.FinishedAt.Sub(report.StartedAt)).
		Msg("billing run finished")
}
