package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "pantry-raffle-backend/internal/common/errors"
	"pantry-raffle-backend/internal/common/logger"
	"pantry-raffle-backend/internal/features/raffle/engine"
	"pantry-raffle-backend/internal/features/raffle/models"
	"pantry-raffle-backend/internal/features/raffle/repository"
)

// stateStore serializes every read-modify-write behind one mutex and keeps
// the single-slot redo memory. Both live only as long as the process.
type stateStore struct {
	mu     sync.Mutex
	repo   repository.StateRepository
	engine *engine.Engine
	now    func() time.Time
	log    zerolog.Logger

	// id of the snapshot the last undo stepped away from
	redoID string
}

type Option func(*stateStore)

func WithClock(now func() time.Time) Option {
	return func(s *stateStore) { s.now = now }
}

func WithEngine(e *engine.Engine) Option {
	return func(s *stateStore) { s.engine = e }
}

func NewStateStore(repo repository.StateRepository, opts ...Option) StateStore {
	s := &stateStore{
		repo:   repo,
		engine: engine.New(nil),
		now:    time.Now,
		log:    logger.Component("state-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadState возвращает текущее состояние, создавая его по умолчанию при первом запуске
func (s *stateStore) LoadState(ctx context.Context) (*models.RaffleState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *stateStore) ListSnapshots(ctx context.Context) ([]models.SnapshotMeta, error) {
	return s.repo.ListSnapshots(ctx)
}

func (s *stateStore) GenerateState(ctx context.Context, in engine.GenerateInput) (*models.RaffleState, error) {
	return s.mutate(ctx, "generate", func(cur *models.RaffleState, _ int64) (*models.RaffleState, error) {
		return s.engine.Generate(cur, in)
	})
}

func (s *stateStore) AppendTickets(ctx context.Context, newEndNumber int) (*models.RaffleState, error) {
	return s.mutate(ctx, "append", func(cur *models.RaffleState, _ int64) (*models.RaffleState, error) {
		return s.engine.Append(cur, newEndNumber)
	})
}

func (s *stateStore) ExtendRange(ctx context.Context, newEndNumber int) (*models.RaffleState, error) {
	return s.mutate(ctx, "extend_range", func(cur *models.RaffleState, _ int64) (*models.RaffleState, error) {
		return engine.ExtendRange(cur, newEndNumber)
	})
}

func (s *stateStore) GenerateBatch(ctx context.Context, in engine.BatchInput) (*models.RaffleState, error) {
	return s.mutate(ctx, "generate_batch", func(cur *models.RaffleState, _ int64) (*models.RaffleState, error) {
		return s.engine.Batch(cur, in)
	})
}

func (s *stateStore) SetMode(ctx context.Context, mode models.Mode) (*models.RaffleState, error) {
	return s.mutate(ctx, "set_mode", func(cur *models.RaffleState, _ int64) (*models.RaffleState, error) {
		return s.engine.SetMode(cur, mode)
	})
}

func (s *stateStore) UpdateCurrentlyServing(ctx context.Context, value *int) (*models.RaffleState, error) {
	return s.mutate(ctx, "update_serving", func(cur *models.RaffleState, now int64) (*models.RaffleState, error) {
		return engine.SetServing(cur, value, now)
	})
}

// AdvanceServing двигает указатель; если двигаться некуда, ничего не сохраняет
func (s *stateStore) AdvanceServing(ctx context.Context, direction models.Direction) (*models.RaffleState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	next, changed, err := engine.Advance(cur, direction, s.now().UnixMilli())
	if err != nil {
		return nil, err
	}
	if !changed {
		s.log.Debug().Str("direction", string(direction)).Msg("Serving pointer already at the edge")
		return cur, nil
	}
	return s.commitLocked(ctx, "advance_serving", next, repository.PersistOptions{})
}

func (s *stateStore) MarkTicketReturned(ctx context.Context, ticket int) (*models.RaffleState, error) {
	return s.mutate(ctx, "mark_returned", func(cur *models.RaffleState, now int64) (*models.RaffleState, error) {
		return engine.MarkReturned(cur, ticket, now)
	})
}

func (s *stateStore) MarkTicketUnclaimed(ctx context.Context, ticket int) (*models.RaffleState, error) {
	return s.mutate(ctx, "mark_unclaimed", func(cur *models.RaffleState, _ int64) (*models.RaffleState, error) {
		return engine.MarkUnclaimed(cur, ticket)
	})
}

func (s *stateStore) ResetState(ctx context.Context) (*models.RaffleState, error) {
	return s.mutate(ctx, "reset", func(cur *models.RaffleState, _ int64) (*models.RaffleState, error) {
		return engine.Reset(cur), nil
	})
}

func (s *stateStore) SetDisplayURL(ctx context.Context, url string) (*models.RaffleState, error) {
	return s.mutate(ctx, "set_display_url", func(cur *models.RaffleState, _ int64) (*models.RaffleState, error) {
		return engine.SetDisplayURL(cur, url), nil
	})
}

func (s *stateStore) SetOperatingHours(ctx context.Context, hours []models.OperatingWindow, timezone string) (*models.RaffleState, error) {
	return s.mutate(ctx, "set_operating_hours", func(cur *models.RaffleState, _ int64) (*models.RaffleState, error) {
		return engine.SetOperatingHours(cur, hours, timezone), nil
	})
}

// RestoreSnapshot делает снапшот текущим состоянием, сохраняя его timestamp
func (s *stateStore) RestoreSnapshot(ctx context.Context, id string) (*models.RaffleState, error) {
	if _, ok := models.ParseSnapshotID(id); !ok {
		return nil, apperrors.UserInput("Invalid snapshot id.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.repo.LoadSnapshot(ctx, id)
	if errors.Is(err, repository.ErrSnapshotNotFound) {
		return nil, apperrors.NewNotFoundError("Snapshot", id)
	}
	if err != nil {
		return nil, err
	}

	saved, err := s.commitLocked(ctx, "restore_snapshot", snap, repository.PersistOptions{PreserveTimestamp: true})
	if err != nil {
		return nil, err
	}
	s.redoID = ""
	return saved, nil
}

// Undo восстанавливает предпоследний снапшот и запоминает последний для Redo.
// Повторный Undo возвращает к состоянию до первого.
func (s *stateStore) Undo(ctx context.Context) (*models.RaffleState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshots, err := s.repo.ListSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	if len(snapshots) < 2 {
		return nil, apperrors.UserInput("No history available.")
	}
	newest, previous := snapshots[0], snapshots[1]

	snap, err := s.repo.LoadSnapshot(ctx, previous.ID)
	if errors.Is(err, repository.ErrSnapshotNotFound) {
		return nil, apperrors.UserInput("No history available.")
	}
	if err != nil {
		return nil, err
	}

	saved, err := s.commitLocked(ctx, "undo", snap, repository.PersistOptions{PreserveTimestamp: true})
	if err != nil {
		return nil, err
	}
	s.redoID = newest.ID
	s.log.Info().Str("restored", previous.ID).Str("redo", newest.ID).Msg("Undo applied")
	return saved, nil
}

func (s *stateStore) Redo(ctx context.Context) (*models.RaffleState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.redoID == "" {
		return nil, apperrors.UserInput("Nothing to redo.")
	}
	id := s.redoID

	snap, err := s.repo.LoadSnapshot(ctx, id)
	if errors.Is(err, repository.ErrSnapshotNotFound) {
		// снапшот удалён очисткой
		s.redoID = ""
		return nil, apperrors.UserInput("Nothing to redo.")
	}
	if err != nil {
		return nil, err
	}

	saved, err := s.commitLocked(ctx, "redo", snap, repository.PersistOptions{PreserveTimestamp: true})
	if err != nil {
		return nil, err
	}
	s.redoID = ""
	s.log.Info().Str("restored", id).Msg("Redo applied")
	return saved, nil
}

// CleanupOldSnapshots удаляет снапшоты старше retentionDays. Самый новый
// снапшот не удаляется никогда.
func (s *stateStore) CleanupOldSnapshots(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, apperrors.UserInput("Retention days must be a positive integer.")
	}
	pruner, ok := s.repo.(repository.SnapshotPruner)
	if !ok {
		return 0, apperrors.New(apperrors.ErrCodeInternal, "Snapshot cleanup is not supported by this backend")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	deleted, err := pruner.DeleteSnapshotsBefore(ctx, cutoff)
	if err != nil {
		return deleted, err
	}
	s.log.Info().Int("retention_days", retentionDays).Int("deleted", deleted).Msg("Old snapshots removed")
	return deleted, nil
}

type transition func(cur *models.RaffleState, now int64) (*models.RaffleState, error)

// mutate is the common load, apply, persist path. Any successful mutation
// forgets the pending redo.
func (s *stateStore) mutate(ctx context.Context, op string, fn transition) (*models.RaffleState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	next, err := fn(cur, s.now().UnixMilli())
	if err != nil {
		if apperrors.IsUserInput(err) {
			s.log.Debug().Str("operation", op).Err(err).Msg("Operation rejected")
		}
		return nil, err
	}

	saved, err := s.commitLocked(ctx, op, next, repository.PersistOptions{})
	if err != nil {
		return nil, err
	}
	s.redoID = ""
	return saved, nil
}

func (s *stateStore) commitLocked(ctx context.Context, op string, next *models.RaffleState, opts repository.PersistOptions) (*models.RaffleState, error) {
	if err := engine.CheckInvariants(next); err != nil {
		s.log.Error().Str("operation", op).Err(err).Msg("Refusing to persist inconsistent state")
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "State invariant violated by %s", op).
			WithDetail("operation", op)
	}

	saved, err := s.repo.Persist(ctx, next, opts)
	if err != nil {
		s.log.Error().Str("operation", op).Err(err).Msg("Failed to persist state")
		return nil, err
	}
	s.log.Debug().Str("operation", op).Int64("timestamp", saved.Timestamp).Msg("State updated")
	return saved, nil
}

func (s *stateStore) loadLocked(ctx context.Context) (*models.RaffleState, error) {
	cur, err := s.repo.Current(ctx)
	if err == nil {
		return cur, nil
	}
	if !errors.Is(err, repository.ErrStateNotFound) {
		return nil, err
	}

	s.log.Info().Msg("No persisted state, writing defaults")
	return s.commitLocked(ctx, "init", models.DefaultState(), repository.PersistOptions{})
}
