package http

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pantry-raffle-backend/internal/common/cache"
	"pantry-raffle-backend/internal/common/errors"
	"pantry-raffle-backend/internal/common/middleware"
	"pantry-raffle-backend/internal/common/ratelimit"
	"pantry-raffle-backend/internal/features/raffle/models"
	"pantry-raffle-backend/internal/features/raffle/repository/file"
	"pantry-raffle-backend/internal/features/raffle/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	store  service.StateStore
}

func newTestServer(t *testing.T, cacheService *cache.CacheService, mutating ...gin.HandlerFunc) *testServer {
	repo, err := file.New(t.TempDir())
	require.NoError(t, err)
	store := service.NewStateStore(repo)
	return newTestServerWithStore(store, cacheService, mutating...)
}

func newTestServerWithStore(store service.StateStore, cacheService *cache.CacheService, mutating ...gin.HandlerFunc) *testServer {
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.ErrorHandler(), middleware.HandleErrors())
	NewRaffleHandler(store, cacheService, time.Minute).RegisterRoutes(router.Group("/api/v1"), mutating...)
	return &testServer{router: router, store: store}
}

func (s *testServer) post(t *testing.T, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	switch b := body.(type) {
	case string:
		raw = []byte(b)
	default:
		var err error
		raw, err = json.Marshal(b)
		require.NoError(t, err)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/state", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) *models.RaffleState {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var s models.RaffleState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	return &s
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponse {
	t.Helper()
	var e middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func TestGetStateDefaults(t *testing.T) {
	s := newTestServer(t, nil)

	state := decodeState(t, s.get(t, "/api/v1/state"))
	assert.Equal(t, models.ModeRandom, state.Mode)
	assert.Empty(t, state.GeneratedOrder)
	assert.NotZero(t, state.Timestamp)
}

func TestGenerateAndLockedMessage(t *testing.T) {
	s := newTestServer(t, nil)

	state := decodeState(t, s.post(t, gin.H{"action": "generate", "startNumber": 1, "endNumber": 4, "mode": "sequential"}))
	assert.Equal(t, []int{1, 2, 3, 4}, state.GeneratedOrder)
	assert.True(t, state.OrderLocked)

	w := s.post(t, gin.H{"action": "generate", "startNumber": 1, "endNumber": 4})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Order is locked. Use reset to start a new lottery.", decodeError(t, w).Error.Message)
}

func TestServingFlow(t *testing.T) {
	s := newTestServer(t, nil)
	decodeState(t, s.post(t, gin.H{"action": "generate", "startNumber": 1, "endNumber": 3, "mode": "sequential"}))

	state := decodeState(t, s.post(t, gin.H{"action": "advanceServing", "direction": "next"}))
	require.NotNil(t, state.CurrentlyServing)
	assert.Equal(t, 1, *state.CurrentlyServing)

	state = decodeState(t, s.post(t, gin.H{"action": "updateServing", "ticket": 2}))
	assert.Equal(t, 2, *state.CurrentlyServing)

	state = decodeState(t, s.post(t, gin.H{"action": "markUnclaimed", "ticket": 1}))
	assert.Equal(t, models.TicketUnclaimed, state.TicketStatus[1])

	state = decodeState(t, s.post(t, gin.H{"action": "markReturned", "ticket": 2}))
	assert.Equal(t, 3, *state.CurrentlyServing)

	state = decodeState(t, s.post(t, gin.H{"action": "updateServing", "ticket": nil}))
	assert.Nil(t, state.CurrentlyServing)

	w := s.post(t, gin.H{"action": "updateServing", "ticket": 9})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Ticket 9 is outside the range 1-3.", decodeError(t, w).Error.Message)
}

func TestUndoRedoAndSnapshots(t *testing.T) {
	s := newTestServer(t, nil)
	decodeState(t, s.post(t, gin.H{"action": "generate", "startNumber": 1, "endNumber": 3, "mode": "sequential"}))
	decodeState(t, s.post(t, gin.H{"action": "updateServing", "ticket": 3}))

	state := decodeState(t, s.post(t, gin.H{"action": "undo"}))
	assert.Nil(t, state.CurrentlyServing)
	state = decodeState(t, s.post(t, gin.H{"action": "redo"}))
	assert.Equal(t, 3, *state.CurrentlyServing)

	w := s.post(t, gin.H{"action": "redo"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Nothing to redo.", decodeError(t, w).Error.Message)

	w = s.get(t, "/api/v1/snapshots")
	require.Equal(t, http.StatusOK, w.Code)
	var snaps SnapshotsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snaps))
	require.Len(t, snaps.Snapshots, 5)

	state = decodeState(t, s.post(t, gin.H{"action": "restoreSnapshot", "snapshotId": snaps.Snapshots[3].ID}))
	assert.Equal(t, []int{1, 2, 3}, state.GeneratedOrder)
	assert.Nil(t, state.CurrentlyServing)

	w = s.post(t, gin.H{"action": "restoreSnapshot", "snapshotId": "state.json"})
	assert.Equal(t, "Invalid snapshot id.", decodeError(t, w).Error.Message)
}

func TestRangeActions(t *testing.T) {
	s := newTestServer(t, nil)

	state := decodeState(t, s.post(t, gin.H{"action": "generateBatch", "startNumber": 1, "endNumber": 10, "batchSize": 10}))
	assert.Len(t, state.GeneratedOrder, 10)

	state = decodeState(t, s.post(t, gin.H{"action": "extendRange", "newEndNumber": 12}))
	assert.Equal(t, 12, state.EndNumber)
	assert.Len(t, state.GeneratedOrder, 10)

	w := s.post(t, gin.H{"action": "append", "newEndNumber": 15})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t,
		"2 ticket(s) in the current range have not been drawn yet. Draw them with a batch before appending.",
		decodeError(t, w).Error.Message)

	state = decodeState(t, s.post(t, gin.H{"action": "setMode", "mode": "sequential"}))
	assert.Equal(t, models.ModeSequential, state.Mode)

	state = decodeState(t, s.post(t, gin.H{"action": "reset"}))
	assert.False(t, state.OrderLocked)
}

func TestSettings(t *testing.T) {
	s := newTestServer(t, nil)

	state := decodeState(t, s.post(t, gin.H{"action": "setDisplayUrl", "url": "https://pantry.example/screen"}))
	assert.Equal(t, "https://pantry.example/screen", state.DisplayURL)

	w := s.post(t, gin.H{"action": "setDisplayUrl", "url": "javascript:alert(1)"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.ErrCodeValidation, decodeError(t, w).Error.Code)

	state = decodeState(t, s.post(t, gin.H{
		"action":         "setOperatingHours",
		"operatingHours": []gin.H{{"day": 3, "open": "09:00", "close": "11:30"}},
		"timezone":       "America/Denver",
	}))
	assert.Equal(t, []models.OperatingWindow{{Day: 3, Open: "09:00", Close: "11:30"}}, state.OperatingHours)
	assert.Equal(t, "America/Denver", state.Timezone)

	w = s.post(t, gin.H{
		"action":         "setOperatingHours",
		"operatingHours": []gin.H{{"day": 3, "open": "09:00", "close": "11:30"}},
		"timezone":       "Nowhere/Special",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSchemaViolations(t *testing.T) {
	s := newTestServer(t, nil)

	cases := []interface{}{
		`{"action": "generate", "startNumber": 1.5, "endNumber": 3}`,
		`not json`,
		`{}`,
		gin.H{"action": "fly"},
		gin.H{"action": "generate", "startNumber": 1},
		gin.H{"action": "markReturned"},
		gin.H{"action": "cleanupSnapshots"},
	}
	for _, body := range cases {
		w := s.post(t, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "%v", body)
	}

	// nothing reached the store beyond the defaults
	snaps, err := s.store.ListSnapshots(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestCleanupSnapshots(t *testing.T) {
	s := newTestServer(t, nil)
	decodeState(t, s.post(t, gin.H{"action": "reset"}))

	w := s.post(t, gin.H{"action": "cleanupSnapshots", "retentionDays": 30})
	require.Equal(t, http.StatusOK, w.Code)
	var res CleanupResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Zero(t, res.Deleted)

	w = s.post(t, gin.H{"action": "cleanupSnapshots", "retentionDays": -1})
	assert.Equal(t, "Retention days must be a positive integer.", decodeError(t, w).Error.Message)
}

func TestStateCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	cacheService := cache.NewCacheService(client, "raffle")
	s := newTestServer(t, cacheService)

	first := decodeState(t, s.get(t, "/api/v1/state"))
	assert.True(t, mr.Exists("raffle:state"))

	generated := decodeState(t, s.post(t, gin.H{"action": "generate", "startNumber": 1, "endNumber": 2, "mode": "sequential"}))
	assert.NotEqual(t, first.Timestamp, generated.Timestamp)

	cached := decodeState(t, s.get(t, "/api/v1/state"))
	assert.Equal(t, generated, cached)

	// a broken cache falls back to the store
	mr.Close()
	fallback := decodeState(t, s.get(t, "/api/v1/state"))
	assert.Equal(t, generated.Timestamp, fallback.Timestamp)
}

// pausingStore holds the first LoadState result until release is closed.
type pausingStore struct {
	service.StateStore
	paused  atomic.Bool
	loaded  chan struct{}
	release chan struct{}
}

func (p *pausingStore) LoadState(ctx context.Context) (*models.RaffleState, error) {
	state, err := p.StateStore.LoadState(ctx)
	if p.paused.CompareAndSwap(false, true) {
		close(p.loaded)
		<-p.release
	}
	return state, err
}

func TestSlowReadDoesNotOverwriteNewerCachedState(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	repo, err := file.New(t.TempDir())
	require.NoError(t, err)
	store := &pausingStore{
		StateStore: service.NewStateStore(repo),
		loaded:     make(chan struct{}),
		release:    make(chan struct{}),
	}
	s := newTestServerWithStore(store, cache.NewCacheService(client, "raffle"))

	slow := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.router.ServeHTTP(slow, httptest.NewRequest(http.MethodGet, "/api/v1/state", nil))
	}()
	<-store.loaded

	generated := decodeState(t, s.post(t, gin.H{"action": "generate", "startNumber": 1, "endNumber": 3, "mode": "sequential"}))
	close(store.release)
	<-done

	stale := decodeState(t, slow)
	assert.False(t, stale.OrderLocked)

	current := decodeState(t, s.get(t, "/api/v1/state"))
	assert.Equal(t, generated.Timestamp, current.Timestamp)
	assert.True(t, current.OrderLocked)
	assert.Equal(t, []int{1, 2, 3}, current.GeneratedOrder)
}

func TestRateLimitedMutations(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(1, time.Hour)
	s := newTestServer(t, nil, middleware.RateLimit(limiter))

	decodeState(t, s.post(t, gin.H{"action": "reset"}))
	w := s.post(t, gin.H{"action": "reset"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// reads are not limited
	decodeState(t, s.get(t, "/api/v1/state"))
}

type brokenStore struct {
	service.StateStore
}

func (brokenStore) LoadState(context.Context) (*models.RaffleState, error) {
	return nil, errors.NewStorageError("read current state", stderrors.New("input/output error on /var/lib/raffle"))
}

func TestInternalErrorIsGeneric(t *testing.T) {
	s := newTestServerWithStore(brokenStore{}, nil)

	w := s.get(t, "/api/v1/state")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", decodeError(t, w).Error.Message)
	assert.NotContains(t, w.Body.String(), "/var/lib/raffle")
}
