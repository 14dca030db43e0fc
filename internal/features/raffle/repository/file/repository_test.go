package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "pantry-raffle-backend/internal/common/errors"
	"pantry-raffle-backend/internal/features/raffle/models"
	"pantry-raffle-backend/internal/features/raffle/repository"
)

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func sampleState() *models.RaffleState {
	s := models.DefaultState()
	s.StartNumber, s.EndNumber = 1, 3
	s.Mode = models.ModeSequential
	s.GeneratedOrder = []int{1, 2, 3}
	s.OrderLocked = true
	return s
}

func TestCurrentMissing(t *testing.T) {
	repo, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = repo.Current(context.Background())
	assert.ErrorIs(t, err, repository.ErrStateNotFound)
}

func TestPersistWritesCurrentAndSnapshot(t *testing.T) {
	dir := t.TempDir()
	repo, err := New(dir, WithClock(fixedClock(1_000)))
	require.NoError(t, err)
	ctx := context.Background()

	saved, err := repo.Persist(ctx, sampleState(), repository.PersistOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), saved.Timestamp)

	cur, err := repo.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved, cur)

	snaps, err := repo.ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, int64(1_000), snaps[0].Timestamp)
	assert.FileExists(t, filepath.Join(dir, snaps[0].ID))
	assert.FileExists(t, filepath.Join(dir, "state.json"))

	fromSnap, err := repo.LoadSnapshot(ctx, snaps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, saved, fromSnap)
}

func TestPersistSameMillisecondStaysMonotonic(t *testing.T) {
	repo, err := New(t.TempDir(), WithClock(fixedClock(5_000)))
	require.NoError(t, err)
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		saved, err := repo.Persist(ctx, sampleState(), repository.PersistOptions{})
		require.NoError(t, err)
		assert.Greater(t, saved.Timestamp, last)
		last = saved.Timestamp
	}

	snaps, err := repo.ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 5)
	for i := 1; i < len(snaps); i++ {
		assert.Greater(t, snaps[i-1].Timestamp, snaps[i].Timestamp)
	}
}

func TestWatermarkSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	repo, err := New(dir, WithClock(fixedClock(9_000)))
	require.NoError(t, err)
	_, err = repo.Persist(context.Background(), sampleState(), repository.PersistOptions{})
	require.NoError(t, err)

	// the clock went backwards across the restart
	reopened, err := New(dir, WithClock(fixedClock(1_000)))
	require.NoError(t, err)
	saved, err := reopened.Persist(context.Background(), sampleState(), repository.PersistOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(9_001), saved.Timestamp)
}

func TestPreserveTimestamp(t *testing.T) {
	repo, err := New(t.TempDir(), WithClock(fixedClock(50_000)))
	require.NoError(t, err)
	ctx := context.Background()

	s := sampleState()
	s.Timestamp = 70_000
	saved, err := repo.Persist(ctx, s, repository.PersistOptions{PreserveTimestamp: true})
	require.NoError(t, err)
	assert.Equal(t, int64(70_000), saved.Timestamp)

	s.Timestamp = 10_000
	saved, err = repo.Persist(ctx, s, repository.PersistOptions{PreserveTimestamp: true})
	require.NoError(t, err)
	assert.Equal(t, int64(70_001), saved.Timestamp)
}

func TestCorruptCurrentFallsBack(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.json"), []byte(`{"startNumber": 1,`), 0o644))

	repo, err := New(dir)
	require.NoError(t, err)

	_, err = repo.Current(context.Background())
	assert.ErrorIs(t, err, repository.ErrStateNotFound)
}

func TestStaleTempFilesRemovedOnOpen(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, ".state-123456.tmp")
	require.NoError(t, os.WriteFile(stale, []byte("partial"), 0o644))

	_, err := New(dir)
	require.NoError(t, err)
	assert.NoFileExists(t, stale)
}

func TestNoTempFilesAfterPersist(t *testing.T) {
	dir := t.TempDir()
	repo, err := New(dir)
	require.NoError(t, err)
	_, err = repo.Persist(context.Background(), sampleState(), repository.PersistOptions{})
	require.NoError(t, err)

	leftovers, err := filepath.Glob(filepath.Join(dir, ".state-*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestLoadSnapshotRejectsBadIDs(t *testing.T) {
	dir := t.TempDir()
	repo, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = repo.LoadSnapshot(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, repository.ErrSnapshotNotFound)
	_, err = repo.LoadSnapshot(ctx, "state.json")
	assert.ErrorIs(t, err, repository.ErrSnapshotNotFound)
	_, err = repo.LoadSnapshot(ctx, "state-1-abcdef12.json")
	assert.ErrorIs(t, err, repository.ErrSnapshotNotFound)
}

func TestListIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	repo, err := New(dir, WithClock(fixedClock(2_000)))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "state-1-abcdef12.json"), 0o755))
	_, err = repo.Persist(context.Background(), sampleState(), repository.PersistOptions{})
	require.NoError(t, err)

	snaps, err := repo.ListSnapshots(context.Background())
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestDeleteSnapshotsBefore(t *testing.T) {
	now := int64(0)
	repo, err := New(t.TempDir(), WithClock(func() time.Time { return time.UnixMilli(now) }))
	require.NoError(t, err)
	ctx := context.Background()

	day := int64(24 * time.Hour / time.Millisecond)
	for _, ts := range []int64{1 * day, 2 * day, 10 * day} {
		now = ts
		_, err := repo.Persist(ctx, sampleState(), repository.PersistOptions{})
		require.NoError(t, err)
	}

	deleted, err := repo.DeleteSnapshotsBefore(ctx, time.UnixMilli(5*day))
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	snaps, err := repo.ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 10*day, snaps[0].Timestamp)

	// the newest snapshot survives even when it is past the cutoff
	deleted, err = repo.DeleteSnapshotsBefore(ctx, time.UnixMilli(20*day))
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestCanceledContext(t *testing.T) {
	repo, err := New(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = repo.Persist(ctx, sampleState(), repository.PersistOptions{})
	require.Error(t, err)
	assert.False(t, apperrors.IsUserInput(err))
}
