package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	apperrors "pantry-raffle-backend/internal/common/errors"
	"pantry-raffle-backend/internal/common/logger"
	"pantry-raffle-backend/internal/features/raffle/models"
	"pantry-raffle-backend/internal/features/raffle/repository"
)

const (
	singletonID         = "singleton"
	DefaultQueryTimeout = 5 * time.Second
)

// postgresRepository mirrors the file backend on two tables: raffle_state
// holds the singleton current row and raffle_snapshots the history.
type postgresRepository struct {
	db        *sql.DB
	timeout   time.Duration
	now       func() time.Time
	watermark *repository.Watermark
	log       zerolog.Logger
}

type Option func(*postgresRepository)

// WithQueryTimeout bounds every statement (and the write transaction as a whole).
func WithQueryTimeout(d time.Duration) Option {
	return func(r *postgresRepository) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *postgresRepository) { r.now = now }
}

// NewPostgresRepository seeds the timestamp watermark from the stored rows.
// The schema must already exist (see Migrate).
func NewPostgresRepository(ctx context.Context, db *sql.DB, opts ...Option) (repository.StateRepository, error) {
	r := &postgresRepository{
		db:      db,
		timeout: DefaultQueryTimeout,
		now:     time.Now,
		log:     logger.Component("postgres-state-repository"),
	}
	for _, opt := range opts {
		opt(r)
	}

	qctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var last int64
	err := r.db.QueryRowContext(qctx, `
		SELECT GREATEST(
			COALESCE((SELECT MAX(ts) FROM raffle_snapshots), 0),
			COALESCE((SELECT ts FROM raffle_state WHERE id = $1), 0)
		)
	`, singletonID).Scan(&last)
	if err != nil {
		return nil, apperrors.NewDatabaseError("read latest timestamp", err)
	}
	r.watermark = repository.NewWatermark(last)

	r.log.Info().Int64("last_timestamp", last).Dur("query_timeout", r.timeout).Msg("Postgres state repository opened")
	return r, nil
}

// Current получает текущее состояние
func (r *postgresRepository) Current(ctx context.Context) (*models.RaffleState, error) {
	qctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var payload []byte
	err := r.db.QueryRowContext(qctx, `SELECT payload FROM raffle_state WHERE id = $1`, singletonID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, repository.ErrStateNotFound
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("select current state", err)
	}

	state, err := decode(payload)
	if err != nil {
		r.log.Warn().Err(err).Msg("Current state row is corrupt, falling back to defaults")
		return nil, repository.ErrStateNotFound
	}
	return state, nil
}

// Persist inserts the snapshot and upserts the singleton row in one transaction.
func (r *postgresRepository) Persist(ctx context.Context, state *models.RaffleState, opts repository.PersistOptions) (*models.RaffleState, error) {
	next := state.Clone()
	next.Timestamp = r.watermark.Next(r.now(), state.Timestamp, opts.PreserveTimestamp)

	data, err := json.Marshal(next)
	if err != nil {
		return nil, apperrors.NewDatabaseError("encode state", err)
	}
	id := models.NewSnapshotID(next.Timestamp)

	// the transaction is rolled back by database/sql if qctx expires before commit
	qctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTx(qctx, nil)
	if err != nil {
		return nil, apperrors.NewDatabaseError("begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(qctx, `
		INSERT INTO raffle_snapshots (id, payload, ts, created_at)
		VALUES ($1, $2, $3, $4)
	`, id, string(data), next.Timestamp, time.UnixMilli(next.Timestamp).UTC())
	if err != nil {
		return nil, apperrors.NewDatabaseError("insert snapshot", err)
	}

	_, err = tx.ExecContext(qctx, `
		INSERT INTO raffle_state (id, payload, ts, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			payload = EXCLUDED.payload,
			ts = EXCLUDED.ts,
			updated_at = EXCLUDED.updated_at
	`, singletonID, string(data), next.Timestamp)
	if err != nil {
		return nil, apperrors.NewDatabaseError("upsert current state", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.NewDatabaseError("commit state", err)
	}

	r.log.Debug().Str("snapshot_id", id).Int64("timestamp", next.Timestamp).Msg("State persisted")
	return next, nil
}

// ListSnapshots возвращает метаданные снапшотов, новые первыми
func (r *postgresRepository) ListSnapshots(ctx context.Context) ([]models.SnapshotMeta, error) {
	qctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(qctx, `
		SELECT id, ts
		FROM raffle_snapshots
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list snapshots", err)
	}
	defer rows.Close()

	snapshots := []models.SnapshotMeta{}
	for rows.Next() {
		var meta models.SnapshotMeta
		if err := rows.Scan(&meta.ID, &meta.Timestamp); err != nil {
			return nil, apperrors.NewDatabaseError("scan snapshot", err)
		}
		snapshots = append(snapshots, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list snapshots", err)
	}
	return snapshots, nil
}

func (r *postgresRepository) LoadSnapshot(ctx context.Context, id string) (*models.RaffleState, error) {
	if _, ok := models.ParseSnapshotID(id); !ok {
		return nil, repository.ErrSnapshotNotFound
	}

	qctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var payload []byte
	err := r.db.QueryRowContext(qctx, `SELECT payload FROM raffle_snapshots WHERE id = $1`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, repository.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("select snapshot", err)
	}
	state, err := decode(payload)
	if err != nil {
		return nil, apperrors.NewDatabaseError("decode snapshot", err)
	}
	return state, nil
}

// DeleteSnapshotsBefore removes snapshots created before cutoff, always
// keeping the newest one.
func (r *postgresRepository) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	qctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(qctx, `
		DELETE FROM raffle_snapshots
		WHERE created_at < $1
		  AND id <> (
			SELECT id FROM raffle_snapshots
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		  )
	`, cutoff.UTC())
	if err != nil {
		return 0, apperrors.NewDatabaseError("delete snapshots", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.NewDatabaseError("delete snapshots", err)
	}
	return int(n), nil
}

// Close is a no-op: the *sql.DB belongs to the caller.
func (r *postgresRepository) Close() error {
	return nil
}

func decode(payload []byte) (*models.RaffleState, error) {
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}
	var state models.RaffleState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, err
	}
	return state.Normalize(), nil
}
