package service

import (
	"context"

	"pantry-raffle-backend/internal/features/raffle/engine"
	"pantry-raffle-backend/internal/features/raffle/models"
)

type StateStore interface {
	// Чтение
	LoadState(ctx context.Context) (*models.RaffleState, error)
	ListSnapshots(ctx context.Context) ([]models.SnapshotMeta, error)

	// Розыгрыш
	GenerateState(ctx context.Context, in engine.GenerateInput) (*models.RaffleState, error)
	AppendTickets(ctx context.Context, newEndNumber int) (*models.RaffleState, error)
	ExtendRange(ctx context.Context, newEndNumber int) (*models.RaffleState, error)
	GenerateBatch(ctx context.Context, in engine.BatchInput) (*models.RaffleState, error)
	SetMode(ctx context.Context, mode models.Mode) (*models.RaffleState, error)

	// Обслуживание
	UpdateCurrentlyServing(ctx context.Context, value *int) (*models.RaffleState, error)
	AdvanceServing(ctx context.Context, direction models.Direction) (*models.RaffleState, error)
	MarkTicketReturned(ctx context.Context, ticket int) (*models.RaffleState, error)
	MarkTicketUnclaimed(ctx context.Context, ticket int) (*models.RaffleState, error)

	// Настройки
	ResetState(ctx context.Context) (*models.RaffleState, error)
	SetDisplayURL(ctx context.Context, url string) (*models.RaffleState, error)
	SetOperatingHours(ctx context.Context, hours []models.OperatingWindow, timezone string) (*models.RaffleState, error)

	// История
	RestoreSnapshot(ctx context.Context, id string) (*models.RaffleState, error)
	Undo(ctx context.Context) (*models.RaffleState, error)
	Redo(ctx context.Context) (*models.RaffleState, error)
	CleanupOldSnapshots(ctx context.Context, retentionDays int) (int, error)
}
