// Package factory opens the state repository selected by configuration.
package factory

import (
	"context"
	"fmt"

	"pantry-raffle-backend/internal/common/config"
	"pantry-raffle-backend/internal/common/logger"
	"pantry-raffle-backend/internal/features/raffle/repository"
	"pantry-raffle-backend/internal/features/raffle/repository/file"
	pgrepo "pantry-raffle-backend/internal/features/raffle/repository/postgres"
	"pantry-raffle-backend/internal/platform/postgres"
)

// Backend is an opened repository plus the connection it owns.
type Backend struct {
	Name string
	Repo repository.StateRepository

	pg *postgres.Client
}

// Open creates the repository for cfg.Store.Backend.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.Store.Backend {
	case config.BackendFile:
		repo, err := file.New(cfg.Store.DataDir)
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("dir", repo.Dir()).Msg("File state backend opened")
		return &Backend{Name: config.BackendFile, Repo: repo}, nil

	case config.BackendPostgres:
		client, err := postgres.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if cfg.Postgres.AutoMigrate {
			if err := pgrepo.Migrate(ctx, client.GetDB()); err != nil {
				client.Close()
				return nil, err
			}
			logger.Info().Msg("Database schema is up to date")
		}
		repo, err := pgrepo.NewPostgresRepository(ctx, client.GetDB(), pgrepo.WithQueryTimeout(cfg.Postgres.QueryTimeout))
		if err != nil {
			client.Close()
			return nil, err
		}
		return &Backend{Name: config.BackendPostgres, Repo: repo, pg: client}, nil

	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Store.Backend)
	}
}

// HealthCheck pings the database for the postgres backend.
func (b *Backend) HealthCheck(ctx context.Context) error {
	if b.pg == nil {
		return nil
	}
	return b.pg.HealthCheck(ctx)
}

func (b *Backend) Close() error {
	if err := b.Repo.Close(); err != nil {
		return err
	}
	if b.pg != nil {
		return b.pg.Close()
	}
	return nil
}
