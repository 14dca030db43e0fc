// Package workers holds background jobs started by the API process.
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "pantry-raffle-backend/internal/common/errors"
	"pantry-raffle-backend/internal/common/logger"
)

// SnapshotCleaner is the part of the state store the retention worker needs.
type SnapshotCleaner interface {
	CleanupOldSnapshots(ctx context.Context, retentionDays int) (int, error)
}

// RetentionWorker periodically deletes snapshots older than the retention
// window. Each pass goes through the store, so it serializes with requests.
type RetentionWorker struct {
	cleaner  SnapshotCleaner
	days     int
	interval time.Duration
	log      zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRetentionWorker(cleaner SnapshotCleaner, days int, interval time.Duration) *RetentionWorker {
	return &RetentionWorker{
		cleaner:  cleaner,
		days:     days,
		interval: interval,
		log:      logger.Component("retention"),
	}
}

// Start runs one pass immediately and then one per interval until Stop.
func (w *RetentionWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.log.Info().
		Int("retention_days", w.days).
		Dur("interval", w.interval).
		Msg("Starting snapshot retention worker")

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.RunOnce(ctx)
		for {
			select {
			case <-ticker.C:
				w.RunOnce(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RunOnce performs a single cleanup pass and returns how many snapshots went away.
func (w *RetentionWorker) RunOnce(ctx context.Context) int {
	deleted, err := w.cleaner.CleanupOldSnapshots(ctx, w.days)
	if err != nil {
		switch {
		case ctx.Err() != nil:
		case apperrors.HasCode(err, apperrors.ErrCodeTimeout):
			// следующий проход повторит очистку
			w.log.Warn().Err(err).Msg("Snapshot cleanup timed out")
		default:
			w.log.Error().Err(err).Msg("Snapshot cleanup failed")
		}
		return 0
	}
	if deleted > 0 {
		w.log.Info().Int("deleted", deleted).Msg("Old snapshots removed")
	}
	return deleted
}

func (w *RetentionWorker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	w.wg.Wait()
	w.log.Info().Msg("Snapshot retention worker stopped")
}
