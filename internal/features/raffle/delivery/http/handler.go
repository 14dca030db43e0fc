package http

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"pantry-raffle-backend/internal/common/cache"
	"pantry-raffle-backend/internal/common/errors"
	"pantry-raffle-backend/internal/common/logger"
	"pantry-raffle-backend/internal/common/validation"
	"pantry-raffle-backend/internal/features/raffle/engine"
	"pantry-raffle-backend/internal/features/raffle/models"
	"pantry-raffle-backend/internal/features/raffle/service"
)

const stateCacheKey = "state"

type RaffleHandler struct {
	service  service.StateStore
	cache    *cache.CacheService
	cacheTTL time.Duration
	log      zerolog.Logger
}

// NewRaffleHandler creates the handler. cacheService may be nil.
func NewRaffleHandler(service service.StateStore, cacheService *cache.CacheService, cacheTTL time.Duration) *RaffleHandler {
	return &RaffleHandler{
		service:  service,
		cache:    cacheService,
		cacheTTL: cacheTTL,
		log:      logger.Component("raffle-handler"),
	}
}

// RegisterRoutes mounts the raffle routes. mutating wraps only POST /state.
func (h *RaffleHandler) RegisterRoutes(router *gin.RouterGroup, mutating ...gin.HandlerFunc) {
	router.GET("/state", h.getState)
	router.GET("/snapshots", h.listSnapshots)

	post := append(append([]gin.HandlerFunc{}, mutating...), h.postAction)
	router.POST("/state", post...)
}

// @Summary Get raffle state
// @Description Returns the current raffle state. A fresh deployment gets the default state persisted as its first snapshot.
// @Tags state
// @Produce json
// @Success 200 {object} models.RaffleState "Current state"
// @Failure 500 {object} middleware.ErrorResponse "Internal server error"
// @Router /state [get]
func (h *RaffleHandler) getState(c *gin.Context) {
	ctx := c.Request.Context()

	if h.cache != nil {
		var cached models.RaffleState
		err := h.cache.Get(ctx, stateCacheKey, &cached)
		if err == nil {
			c.JSON(http.StatusOK, cached.Normalize())
			return
		}
		if !stderrors.Is(err, cache.ErrCacheMiss) {
			h.log.Warn().Err(errors.NewCacheError("get state", err)).Msg("State cache read failed")
		}
	}

	state, err := h.service.LoadState(ctx)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.remember(ctx, state)
	c.JSON(http.StatusOK, state)
}

// @Summary List snapshots
// @Description Lists snapshot ids and timestamps, newest first.
// @Tags snapshots
// @Produce json
// @Success 200 {object} SnapshotsResponse "Snapshots"
// @Failure 500 {object} middleware.ErrorResponse "Internal server error"
// @Router /snapshots [get]
func (h *RaffleHandler) listSnapshots(c *gin.Context) {
	snapshots, err := h.service.ListSnapshots(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, SnapshotsResponse{Snapshots: snapshots})
}

// @Summary Apply an action
// @Description Applies one state operation selected by the "action" field and returns the persisted state.
// @Description Actions: generate, append, extendRange, generateBatch, setMode, updateServing, advanceServing,
// @Description markReturned, markUnclaimed, reset, undo, redo, restoreSnapshot, setDisplayUrl, setOperatingHours,
// @Description cleanupSnapshots (returns {"deleted": n}).
// @Tags state
// @Accept json
// @Produce json
// @Param request body ActionRequest true "Action"
// @Success 200 {object} models.RaffleState "Persisted state"
// @Failure 400 {object} middleware.ErrorResponse "Rejected input, message is shown to the operator"
// @Failure 429 {object} middleware.ErrorResponse "Rate limit exceeded"
// @Failure 500 {object} middleware.ErrorResponse "Internal server error"
// @Router /state [post]
func (h *RaffleHandler) postAction(c *gin.Context) {
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewValidationError("body", "must be a JSON object with an action"))
		return
	}

	ctx := c.Request.Context()

	if req.Action == ActionCleanupSnapshots {
		days, err := required("retentionDays", req.RetentionDays)
		if err != nil {
			_ = c.Error(err)
			return
		}
		deleted, err := h.service.CleanupOldSnapshots(ctx, days)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, CleanupResponse{Deleted: deleted})
		return
	}

	state, err := h.dispatch(ctx, &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.remember(ctx, state)
	c.JSON(http.StatusOK, state)
}

func (h *RaffleHandler) dispatch(ctx context.Context, req *ActionRequest) (*models.RaffleState, error) {
	switch req.Action {
	case ActionGenerate:
		start, err := required("startNumber", req.StartNumber)
		if err != nil {
			return nil, err
		}
		end, err := required("endNumber", req.EndNumber)
		if err != nil {
			return nil, err
		}
		return h.service.GenerateState(ctx, engine.GenerateInput{
			StartNumber: start,
			EndNumber:   end,
			Mode:        models.Mode(req.Mode),
		})

	case ActionAppend, ActionExtendRange:
		end, err := required("newEndNumber", req.NewEndNumber)
		if err != nil {
			return nil, err
		}
		if req.Action == ActionAppend {
			return h.service.AppendTickets(ctx, end)
		}
		return h.service.ExtendRange(ctx, end)

	case ActionGenerateBatch:
		start, err := required("startNumber", req.StartNumber)
		if err != nil {
			return nil, err
		}
		end, err := required("endNumber", req.EndNumber)
		if err != nil {
			return nil, err
		}
		size, err := required("batchSize", req.BatchSize)
		if err != nil {
			return nil, err
		}
		return h.service.GenerateBatch(ctx, engine.BatchInput{StartNumber: start, EndNumber: end, BatchSize: size})

	case ActionSetMode:
		if err := requiredString("mode", req.Mode); err != nil {
			return nil, err
		}
		return h.service.SetMode(ctx, models.Mode(req.Mode))

	case ActionUpdateServing:
		return h.service.UpdateCurrentlyServing(ctx, req.Ticket)

	case ActionAdvanceServing:
		if err := requiredString("direction", req.Direction); err != nil {
			return nil, err
		}
		return h.service.AdvanceServing(ctx, models.Direction(req.Direction))

	case ActionMarkReturned, ActionMarkUnclaimed:
		ticket, err := required("ticket", req.Ticket)
		if err != nil {
			return nil, err
		}
		if req.Action == ActionMarkReturned {
			return h.service.MarkTicketReturned(ctx, ticket)
		}
		return h.service.MarkTicketUnclaimed(ctx, ticket)

	case ActionReset:
		return h.service.ResetState(ctx)

	case ActionUndo:
		return h.service.Undo(ctx)

	case ActionRedo:
		return h.service.Redo(ctx)

	case ActionRestoreSnapshot:
		if err := requiredString("snapshotId", req.SnapshotID); err != nil {
			return nil, err
		}
		return h.service.RestoreSnapshot(ctx, req.SnapshotID)

	case ActionSetDisplayURL:
		if req.URL == nil {
			return nil, errors.NewValidationError("url", "is required")
		}
		if err := validation.ValidateDisplayURL(*req.URL); err != nil {
			return nil, errors.NewValidationError("url", err.Error())
		}
		return h.service.SetDisplayURL(ctx, *req.URL)

	case ActionSetOperatingHours:
		hours, err := req.operatingHours()
		if err != nil {
			return nil, err
		}
		return h.service.SetOperatingHours(ctx, hours, req.Timezone)

	default:
		return nil, errors.NewValidationError("action", "unknown action "+req.Action)
	}
}

// remember refreshes the cached state. The write is keyed on the state
// timestamp, so a slow GET cannot replace a state a later POST already cached.
// Cache failures never fail the request.
func (h *RaffleHandler) remember(ctx context.Context, state *models.RaffleState) {
	if h.cache == nil {
		return
	}
	stored, err := h.cache.SetIfNewer(ctx, stateCacheKey, state, state.Timestamp, h.cacheTTL)
	if err != nil {
		h.log.Warn().Err(errors.NewCacheError("set state", err)).Msg("State cache write failed")
		return
	}
	if !stored {
		h.log.Debug().Int64("timestamp", state.Timestamp).Msg("Stale state not cached")
	}
}
