package http

import (
	"pantry-raffle-backend/internal/common/errors"
	"pantry-raffle-backend/internal/common/validation"
	"pantry-raffle-backend/internal/features/raffle/models"
)

// Действия POST /state
const (
	ActionGenerate          = "generate"
	ActionAppend            = "append"
	ActionExtendRange       = "extendRange"
	ActionGenerateBatch     = "generateBatch"
	ActionSetMode           = "setMode"
	ActionUpdateServing     = "updateServing"
	ActionAdvanceServing    = "advanceServing"
	ActionMarkReturned      = "markReturned"
	ActionMarkUnclaimed     = "markUnclaimed"
	ActionReset             = "reset"
	ActionUndo              = "undo"
	ActionRedo              = "redo"
	ActionRestoreSnapshot   = "restoreSnapshot"
	ActionSetDisplayURL     = "setDisplayUrl"
	ActionSetOperatingHours = "setOperatingHours"
	ActionCleanupSnapshots  = "cleanupSnapshots"
)

// ActionRequest is the body of POST /state. Which fields are read depends on
// the action.
type ActionRequest struct {
	Action string `json:"action" binding:"required" example:"generate"`

	StartNumber  *int   `json:"startNumber,omitempty" example:"1"`
	EndNumber    *int   `json:"endNumber,omitempty" example:"150"`
	NewEndNumber *int   `json:"newEndNumber,omitempty" example:"200"`
	BatchSize    *int   `json:"batchSize,omitempty" example:"25"`
	Mode         string `json:"mode,omitempty" enums:"random,sequential"`

	// updateServing: null clears the pointer
	Ticket    *int   `json:"ticket,omitempty" example:"42"`
	Direction string `json:"direction,omitempty" enums:"next,prev"`

	SnapshotID string `json:"snapshotId,omitempty" example:"state-1700000000000-1a2b3c4d.json"`

	URL            *string                  `json:"url,omitempty" example:"https://pantry.example/display"`
	OperatingHours []OperatingWindowRequest `json:"operatingHours,omitempty"`
	Timezone       string                   `json:"timezone,omitempty" example:"America/Chicago"`

	RetentionDays *int `json:"retentionDays,omitempty" example:"30"`
}

type OperatingWindowRequest struct {
	Day   int    `json:"day" example:"2"`
	Open  string `json:"open" example:"09:00"`
	Close string `json:"close" example:"12:00"`
}

type SnapshotsResponse struct {
	Snapshots []models.SnapshotMeta `json:"snapshots"`
}

type CleanupResponse struct {
	Deleted int `json:"deleted"`
}

func required(field string, v *int) (int, error) {
	if v == nil {
		return 0, errors.NewValidationError(field, "is required")
	}
	return *v, nil
}

func requiredString(field, v string) error {
	if v == "" {
		return errors.NewValidationError(field, "is required")
	}
	return nil
}

// operatingHours validates and converts the request windows.
func (r *ActionRequest) operatingHours() ([]models.OperatingWindow, error) {
	if r.OperatingHours == nil {
		return nil, errors.NewValidationError("operatingHours", "is required")
	}
	if len(r.OperatingHours) > validation.MaxWindowsPerWeek {
		return nil, errors.NewValidationError("operatingHours", "too many windows")
	}
	if err := validation.ValidateTimezone(r.Timezone); err != nil {
		return nil, errors.NewValidationError("timezone", err.Error())
	}

	hours := make([]models.OperatingWindow, 0, len(r.OperatingHours))
	for _, w := range r.OperatingHours {
		if err := validation.ValidateWindow(w.Day, w.Open, w.Close); err != nil {
			return nil, errors.NewValidationError("operatingHours", err.Error())
		}
		hours = append(hours, models.OperatingWindow{Day: w.Day, Open: w.Open, Close: w.Close})
	}
	return hours, nil
}
