// Package storetest runs the state store behavior suite against any
// repository.StateRepository implementation.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "pantry-raffle-backend/internal/common/errors"
	"pantry-raffle-backend/internal/features/raffle/engine"
	"pantry-raffle-backend/internal/features/raffle/models"
	"pantry-raffle-backend/internal/features/raffle/repository"
	"pantry-raffle-backend/internal/features/raffle/service"
)

// Factory returns an empty repository driven by the given clock.
type Factory func(t *testing.T, now func() time.Time) repository.StateRepository

// Clock is a manually advanced clock. It starts frozen, so consecutive
// writes land in the same millisecond unless a test moves it.
type Clock struct {
	mu sync.Mutex
	ms int64
}

func NewClock(ms int64) *Clock {
	return &Clock{ms: ms}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.UnixMilli(c.ms)
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms += d.Milliseconds()
}

// RequireUserError asserts err is a user-input error carrying exactly msg.
func RequireUserError(t *testing.T, err error, msg string) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.True(t, appErr.IsUserInput(), "expected user input error, got %s", appErr.Code)
	assert.Equal(t, msg, appErr.Message)
}

type env struct {
	ctx   context.Context
	clock *Clock
	repo  repository.StateRepository
	store service.StateStore
}

func setup(t *testing.T, factory Factory) *env {
	clock := NewClock(1_700_000_000_000)
	repo := factory(t, clock.Now)
	t.Cleanup(func() { repo.Close() })
	return &env{
		ctx:   context.Background(),
		clock: clock,
		repo:  repo,
		store: service.NewStateStore(repo, service.WithClock(clock.Now)),
	}
}

func (e *env) generate(t *testing.T, start, end int, mode models.Mode) *models.RaffleState {
	t.Helper()
	s, err := e.store.GenerateState(e.ctx, engine.GenerateInput{StartNumber: start, EndNumber: end, Mode: mode})
	require.NoError(t, err)
	return s
}

func (e *env) serve(t *testing.T, n int) *models.RaffleState {
	t.Helper()
	s, err := e.store.UpdateCurrentlyServing(e.ctx, models.IntPtr(n))
	require.NoError(t, err)
	return s
}

func (e *env) snapshotCount(t *testing.T) int {
	t.Helper()
	snaps, err := e.store.ListSnapshots(e.ctx)
	require.NoError(t, err)
	return len(snaps)
}

// Run executes every behavior test with a fresh repository per subtest.
func Run(t *testing.T, factory Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, e *env)
	}{
		{"DefaultsPersistedOnFirstLoad", testDefaultsPersistedOnFirstLoad},
		{"SequentialAppend", testSequentialAppend},
		{"RandomAppendPreservesPrefix", testRandomAppendPreservesPrefix},
		{"ReturnedTicketAutoAdvance", testReturnedTicketAutoAdvance},
		{"UnclaimedRequiresPriorCall", testUnclaimedRequiresPriorCall},
		{"UndoRedo", testUndoRedo},
		{"UndoWithoutHistory", testUndoWithoutHistory},
		{"RedoClearedByMutation", testRedoClearedByMutation},
		{"NoopAdvanceDoesNotPersist", testNoopAdvanceDoesNotPersist},
		{"RoundTrip", testRoundTrip},
		{"MonotonicTimestamps", testMonotonicTimestamps},
		{"LockImmutability", testLockImmutability},
		{"BatchPoolConservation", testBatchPoolConservation},
		{"RestoreSnapshot", testRestoreSnapshot},
		{"ResetKeepsSchedule", testResetKeepsSchedule},
		{"CleanupOldSnapshots", testCleanupOldSnapshots},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, setup(t, factory))
		})
	}
}

func testDefaultsPersistedOnFirstLoad(t *testing.T, e *env) {
	s, err := e.store.LoadState(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ModeRandom, s.Mode)
	assert.Zero(t, s.StartNumber)
	assert.Empty(t, s.GeneratedOrder)
	assert.Nil(t, s.CurrentlyServing)
	assert.Equal(t, 1, e.snapshotCount(t))

	again, err := e.store.LoadState(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, s, again)
	assert.Equal(t, 1, e.snapshotCount(t))
}

func testSequentialAppend(t *testing.T, e *env) {
	s := e.generate(t, 1, 3, models.ModeSequential)
	assert.Equal(t, []int{1, 2, 3}, s.GeneratedOrder)
	assert.True(t, s.OrderLocked)

	s, err := e.store.AppendTickets(e.ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, s.GeneratedOrder)
	assert.Equal(t, 5, s.EndNumber)

	_, err = e.store.AppendTickets(e.ctx, 5)
	RequireUserError(t, err, "New end number must be greater than the current end number (5).")
}

func testRandomAppendPreservesPrefix(t *testing.T, e *env) {
	first := e.generate(t, 1, 3, models.ModeRandom)
	assert.ElementsMatch(t, []int{1, 2, 3}, first.GeneratedOrder)

	s, err := e.store.AppendTickets(e.ctx, 6)
	require.NoError(t, err)
	require.Len(t, s.GeneratedOrder, 6)
	assert.Equal(t, first.GeneratedOrder, s.GeneratedOrder[:3])
	assert.ElementsMatch(t, []int{4, 5, 6}, s.GeneratedOrder[3:])
}

func testReturnedTicketAutoAdvance(t *testing.T, e *env) {
	e.generate(t, 1, 3, models.ModeSequential)
	e.serve(t, 2)

	s, err := e.store.MarkTicketReturned(e.ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, s.CurrentlyServing)
	assert.Equal(t, 3, *s.CurrentlyServing)
	assert.Equal(t, models.TicketReturned, s.TicketStatus[2])
	assert.Contains(t, s.CalledAt, 3)
}

func testUnclaimedRequiresPriorCall(t *testing.T, e *env) {
	e.generate(t, 1, 3, models.ModeSequential)
	e.serve(t, 1)

	_, err := e.store.MarkTicketUnclaimed(e.ctx, 2)
	RequireUserError(t, err, "Ticket 2 has not been called yet.")

	e.serve(t, 2)
	s, err := e.store.MarkTicketUnclaimed(e.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.TicketUnclaimed, s.TicketStatus[1])
}

func testUndoRedo(t *testing.T, e *env) {
	generated := e.generate(t, 1, 5, models.ModeRandom)
	x := generated.GeneratedOrder[2]
	e.serve(t, x)

	undone, err := e.store.Undo(e.ctx)
	require.NoError(t, err)
	assert.Nil(t, undone.CurrentlyServing)
	assert.Equal(t, generated.GeneratedOrder, undone.GeneratedOrder)

	redone, err := e.store.Redo(e.ctx)
	require.NoError(t, err)
	require.NotNil(t, redone.CurrentlyServing)
	assert.Equal(t, x, *redone.CurrentlyServing)

	_, err = e.store.Redo(e.ctx)
	RequireUserError(t, err, "Nothing to redo.")

	loaded, err := e.store.LoadState(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, redone, loaded)
}

func testUndoWithoutHistory(t *testing.T, e *env) {
	_, err := e.store.Undo(e.ctx)
	RequireUserError(t, err, "No history available.")

	_, err = e.store.LoadState(e.ctx)
	require.NoError(t, err)
	_, err = e.store.Undo(e.ctx)
	RequireUserError(t, err, "No history available.")

	_, err = e.store.Redo(e.ctx)
	RequireUserError(t, err, "Nothing to redo.")
}

func testRedoClearedByMutation(t *testing.T, e *env) {
	e.generate(t, 1, 3, models.ModeSequential)
	e.serve(t, 1)

	_, err := e.store.Undo(e.ctx)
	require.NoError(t, err)
	_, err = e.store.SetDisplayURL(e.ctx, "https://pantry.example/display")
	require.NoError(t, err)

	_, err = e.store.Redo(e.ctx)
	RequireUserError(t, err, "Nothing to redo.")
}

func testNoopAdvanceDoesNotPersist(t *testing.T, e *env) {
	e.generate(t, 1, 3, models.ModeSequential)
	at := e.serve(t, 3)
	before := e.snapshotCount(t)

	e.clock.Advance(time.Second)
	s, err := e.store.AdvanceServing(e.ctx, models.DirectionNext)
	require.NoError(t, err)
	assert.Equal(t, at, s)
	assert.Equal(t, before, e.snapshotCount(t))

	s, err = e.store.AdvanceServing(e.ctx, models.DirectionPrev)
	require.NoError(t, err)
	require.NotNil(t, s.CurrentlyServing)
	assert.Equal(t, 2, *s.CurrentlyServing)
	assert.Equal(t, before+1, e.snapshotCount(t))
}

func testRoundTrip(t *testing.T, e *env) {
	e.generate(t, 10, 20, models.ModeRandom)
	_, err := e.store.AdvanceServing(e.ctx, models.DirectionNext)
	require.NoError(t, err)
	_, err = e.store.ExtendRange(e.ctx, 25)
	require.NoError(t, err)
	_, err = e.store.GenerateBatch(e.ctx, engine.BatchInput{StartNumber: 10, EndNumber: 25, BatchSize: 3})
	require.NoError(t, err)
	last, err := e.store.SetOperatingHours(e.ctx,
		[]models.OperatingWindow{{Day: 2, Open: "09:00", Close: "12:00"}}, "America/Chicago")
	require.NoError(t, err)

	loaded, err := e.store.LoadState(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, last, loaded)
}

func testMonotonicTimestamps(t *testing.T, e *env) {
	e.generate(t, 1, 10, models.ModeSequential)
	for i := 0; i < 10; i++ {
		_, err := e.store.AdvanceServing(e.ctx, models.DirectionNext)
		require.NoError(t, err)
	}

	snaps, err := e.store.ListSnapshots(e.ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 12)
	for i := 1; i < len(snaps); i++ {
		assert.Greater(t, snaps[i-1].Timestamp, snaps[i].Timestamp)
	}
}

func testLockImmutability(t *testing.T, e *env) {
	e.generate(t, 5, 9, models.ModeRandom)

	_, err := e.store.GenerateState(e.ctx, engine.GenerateInput{StartNumber: 1, EndNumber: 3, Mode: models.ModeSequential})
	RequireUserError(t, err, "Order is locked. Use reset to start a new lottery.")

	_, err = e.store.GenerateBatch(e.ctx, engine.BatchInput{StartNumber: 4, EndNumber: 9, BatchSize: 1})
	RequireUserError(t, err, "Start number is locked at 5.")

	_, err = e.store.SetMode(e.ctx, models.ModeSequential)
	require.NoError(t, err)

	s, err := e.store.LoadState(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, s.StartNumber)
	assert.True(t, s.OrderLocked)
}

func testBatchPoolConservation(t *testing.T, e *env) {
	first, err := e.store.GenerateBatch(e.ctx, engine.BatchInput{StartNumber: 1, EndNumber: 10, BatchSize: 4})
	require.NoError(t, err)
	require.Len(t, first.GeneratedOrder, 4)

	second, err := e.store.GenerateBatch(e.ctx, engine.BatchInput{StartNumber: 1, EndNumber: 12, BatchSize: 5})
	require.NoError(t, err)
	require.Len(t, second.GeneratedOrder, 9)
	assert.Equal(t, first.GeneratedOrder, second.GeneratedOrder[:4])

	seen := map[int]bool{}
	for _, n := range second.GeneratedOrder {
		assert.False(t, seen[n], "ticket %d drawn twice", n)
		seen[n] = true
		assert.GreaterOrEqual(t, n, 1)
		assert.LessOrEqual(t, n, 12)
	}

	_, err = e.store.GenerateBatch(e.ctx, engine.BatchInput{StartNumber: 1, EndNumber: 12, BatchSize: 4})
	RequireUserError(t, err, "Batch size (4) exceeds the number of undrawn tickets (3).")
}

func testRestoreSnapshot(t *testing.T, e *env) {
	generated := e.generate(t, 1, 4, models.ModeSequential)
	e.serve(t, 2)

	_, err := e.store.RestoreSnapshot(e.ctx, "../state.json")
	RequireUserError(t, err, "Invalid snapshot id.")

	missing := models.NewSnapshotID(42)
	_, err = e.store.RestoreSnapshot(e.ctx, missing)
	RequireUserError(t, err, "Snapshot not found: "+missing)

	snaps, err := e.store.ListSnapshots(e.ctx)
	require.NoError(t, err)
	var target models.SnapshotMeta
	for _, snap := range snaps {
		if snap.Timestamp == generated.Timestamp {
			target = snap
		}
	}
	require.NotEmpty(t, target.ID)

	restored, err := e.store.RestoreSnapshot(e.ctx, target.ID)
	require.NoError(t, err)
	assert.Nil(t, restored.CurrentlyServing)
	assert.Equal(t, generated.GeneratedOrder, restored.GeneratedOrder)
	assert.Greater(t, restored.Timestamp, snaps[0].Timestamp)
}

func testResetKeepsSchedule(t *testing.T, e *env) {
	e.generate(t, 1, 3, models.ModeSequential)
	hours := []models.OperatingWindow{{Day: 1, Open: "10:00", Close: "14:00"}}
	_, err := e.store.SetOperatingHours(e.ctx, hours, "Europe/Berlin")
	require.NoError(t, err)

	s, err := e.store.ResetState(e.ctx)
	require.NoError(t, err)
	assert.False(t, s.OrderLocked)
	assert.Empty(t, s.GeneratedOrder)
	assert.Zero(t, s.EndNumber)
	assert.Equal(t, hours, s.OperatingHours)
	assert.Equal(t, "Europe/Berlin", s.Timezone)

	again := e.generate(t, 1, 2, models.ModeSequential)
	assert.Equal(t, []int{1, 2}, again.GeneratedOrder)
}

func testCleanupOldSnapshots(t *testing.T, e *env) {
	_, err := e.store.CleanupOldSnapshots(e.ctx, 0)
	RequireUserError(t, err, "Retention days must be a positive integer.")

	e.generate(t, 1, 3, models.ModeSequential)
	e.serve(t, 1)
	e.clock.Advance(10 * 24 * time.Hour)
	latest := e.serve(t, 2)

	deleted, err := e.store.CleanupOldSnapshots(e.ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	snaps, err := e.store.ListSnapshots(e.ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, latest.Timestamp, snaps[0].Timestamp)

	// only the newest snapshot is left, so it survives any retention
	e.clock.Advance(30 * 24 * time.Hour)
	deleted, err = e.store.CleanupOldSnapshots(e.ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
