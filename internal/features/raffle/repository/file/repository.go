package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	apperrors "pantry-raffle-backend/internal/common/errors"
	"pantry-raffle-backend/internal/common/logger"
	"pantry-raffle-backend/internal/features/raffle/models"
	"pantry-raffle-backend/internal/features/raffle/repository"
)

const (
	currentFileName = "state.json"
	tempPattern     = ".state-*.tmp"
)

// Repository keeps the raffle state as JSON files in one directory:
// state.json is the live copy and every revision is also written to an
// immutable state-<timestamp>-<suffix>.json next to it.
type Repository struct {
	dir       string
	now       func() time.Time
	watermark *repository.Watermark
	log       zerolog.Logger
}

type Option func(*Repository)

// WithClock overrides time.Now for revision timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// New opens (creating if needed) the data directory, removes temp files left
// behind by an interrupted write and seeds the timestamp watermark.
func New(dir string, opts ...Option) (*Repository, error) {
	r := &Repository{
		dir: dir,
		now: time.Now,
		log: logger.Component("file-state-repository"),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.NewStorageError("create data directory", err)
	}
	if err := r.sweepTempFiles(); err != nil {
		return nil, err
	}

	last, err := r.newestTimestamp()
	if err != nil {
		return nil, err
	}
	r.watermark = repository.NewWatermark(last)

	r.log.Info().Str("dir", dir).Int64("last_timestamp", last).Msg("File state repository opened")
	return r, nil
}

// Current returns the live state. A missing or unreadable state.json yields
// repository.ErrStateNotFound so the caller re-synthesizes defaults.
func (r *Repository) Current(ctx context.Context) (*models.RaffleState, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStorageError("read current state", err)
	}
	state, err := r.readState(filepath.Join(r.dir, currentFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, repository.ErrStateNotFound
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		r.log.Warn().Err(err).Msg("Current state file is corrupt, falling back to defaults")
		return nil, repository.ErrStateNotFound
	}
	if err != nil {
		return nil, apperrors.NewStorageError("read current state", err)
	}
	return state, nil
}

func (r *Repository) Persist(ctx context.Context, state *models.RaffleState, opts repository.PersistOptions) (*models.RaffleState, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStorageError("persist state", err)
	}

	next := state.Clone()
	next.Timestamp = r.watermark.Next(r.now(), state.Timestamp, opts.PreserveTimestamp)

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return nil, apperrors.NewStorageError("encode state", err)
	}

	id := models.NewSnapshotID(next.Timestamp)
	if err := r.writeAtomic(id, data); err != nil {
		return nil, apperrors.NewStorageError("write snapshot", err)
	}
	if err := r.writeAtomic(currentFileName, data); err != nil {
		return nil, apperrors.NewStorageError("write current state", err)
	}

	r.log.Debug().Str("snapshot_id", id).Int64("timestamp", next.Timestamp).Msg("State persisted")
	return next, nil
}

// ListSnapshots returns snapshot metadata newest first. Timestamps come from
// the file names; payloads are not read.
func (r *Repository) ListSnapshots(ctx context.Context) ([]models.SnapshotMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStorageError("list snapshots", err)
	}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, apperrors.NewStorageError("list snapshots", err)
	}

	snapshots := make([]models.SnapshotMeta, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, ok := models.ParseSnapshotID(entry.Name())
		if !ok {
			continue
		}
		snapshots = append(snapshots, models.SnapshotMeta{ID: entry.Name(), Timestamp: ts})
	}
	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].Timestamp != snapshots[j].Timestamp {
			return snapshots[i].Timestamp > snapshots[j].Timestamp
		}
		return snapshots[i].ID > snapshots[j].ID
	})
	return snapshots, nil
}

func (r *Repository) LoadSnapshot(ctx context.Context, id string) (*models.RaffleState, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStorageError("load snapshot", err)
	}
	if _, ok := models.ParseSnapshotID(id); !ok {
		return nil, repository.ErrSnapshotNotFound
	}
	state, err := r.readState(filepath.Join(r.dir, id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, repository.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, apperrors.NewStorageError("load snapshot", err)
	}
	return state, nil
}

// DeleteSnapshotsBefore removes snapshots older than cutoff. The newest
// snapshot is always kept so the live state keeps a history entry.
func (r *Repository) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	snapshots, err := r.ListSnapshots(ctx)
	if err != nil {
		return 0, err
	}
	limit := cutoff.UnixMilli()
	deleted := 0
	for i, snap := range snapshots {
		if i == 0 || snap.Timestamp >= limit {
			continue
		}
		if err := os.Remove(filepath.Join(r.dir, snap.ID)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return deleted, apperrors.NewStorageError("delete snapshot", err)
		}
		deleted++
	}
	if deleted > 0 {
		if err := syncDir(r.dir); err != nil {
			return deleted, apperrors.NewStorageError("sync data directory", err)
		}
	}
	return deleted, nil
}

func (r *Repository) Close() error {
	return nil
}

// Dir returns the data directory.
func (r *Repository) Dir() string {
	return r.dir
}

func (r *Repository) readState(path string) (*models.RaffleState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var state models.RaffleState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return state.Normalize(), nil
}

// writeAtomic writes data to name through a synced temp file and a rename,
// then syncs the directory so the rename itself survives a crash.
func (r *Repository) writeAtomic(name string, data []byte) error {
	tmpFile, err := os.CreateTemp(r.dir, tempPattern)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("syncing %s: %w", name, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(r.dir, name)); err != nil {
		return fmt.Errorf("renaming into %s: %w", name, err)
	}
	success = true

	return syncDir(r.dir)
}

func (r *Repository) sweepTempFiles() error {
	leftovers, err := filepath.Glob(filepath.Join(r.dir, tempPattern))
	if err != nil {
		return apperrors.NewStorageError("scan temp files", err)
	}
	for _, path := range leftovers {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return apperrors.NewStorageError("remove stale temp file", err)
		}
		r.log.Warn().Str("path", path).Msg("Removed temp file left by an interrupted write")
	}
	return nil
}

func (r *Repository) newestTimestamp() (int64, error) {
	var last int64
	snapshots, err := r.ListSnapshots(context.Background())
	if err != nil {
		return 0, err
	}
	if len(snapshots) > 0 {
		last = snapshots[0].Timestamp
	}
	if cur, err := r.readState(filepath.Join(r.dir, currentFileName)); err == nil && cur.Timestamp > last {
		last = cur.Timestamp
	}
	return last, nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	// some filesystems cannot fsync a directory
	if err := d.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) {
		return err
	}
	return nil
}
