package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"pantry-raffle-backend/internal/features/raffle/models"
)

var (
	ErrStateNotFound    = errors.New("raffle state not found")
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// PersistOptions tunes a single write.
type PersistOptions struct {
	// PreserveTimestamp keeps the state's own timestamp (restores) instead of
	// minting a new one. The watermark still bumps it when it would not be
	// strictly greater than the last persisted revision.
	PreserveTimestamp bool
}

// StateRepository is the persistence substrate behind the state store. Persist
// writes an immutable snapshot and then swaps the current pointer to it.
type StateRepository interface {
	Current(ctx context.Context) (*models.RaffleState, error)
	Persist(ctx context.Context, state *models.RaffleState, opts PersistOptions) (*models.RaffleState, error)
	ListSnapshots(ctx context.Context) ([]models.SnapshotMeta, error)
	LoadSnapshot(ctx context.Context, id string) (*models.RaffleState, error)
	Close() error
}

// SnapshotPruner is an optional capability for retention cleanup. Callers
// probe for it with a type assertion.
type SnapshotPruner interface {
	DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Watermark keeps persisted timestamps strictly increasing within a process,
// including several writes inside the same millisecond.
type Watermark struct {
	mu   sync.Mutex
	last int64
}

// NewWatermark starts the watermark at the newest timestamp already stored.
func NewWatermark(last int64) *Watermark {
	return &Watermark{last: last}
}

// Next reserves the timestamp for the next revision: max(now, last+1), or
// max(candidate, last+1) when preserve is set.
func (w *Watermark) Next(now time.Time, candidate int64, preserve bool) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	ts := now.UnixMilli()
	if preserve {
		ts = candidate
	}
	if ts <= w.last {
		ts = w.last + 1
	}
	w.last = ts
	return ts
}

// Last returns the newest reserved timestamp.
func (w *Watermark) Last() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}
