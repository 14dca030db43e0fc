package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, BackendFile, cfg.Store.Backend)
	assert.Equal(t, 5*time.Second, cfg.Postgres.QueryTimeout)
	assert.Equal(t, 60, cfg.RateLimit.Requests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("STATE_BACKEND", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/raffle")
	t.Setenv("POSTGRES_QUERY_TIMEOUT", "750ms")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, 750*time.Millisecond, cfg.Postgres.QueryTimeout)
	assert.Equal(t, "cache:6380", cfg.RedisAddr())
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STATE_BACKEND", "sqlite")

	_, err := Load()
	assert.ErrorContains(t, err, "invalid STATE_BACKEND")
}

func TestValidateRejectsEmptyRateLimit(t *testing.T) {
	t.Setenv("RATE_LIMIT_REQUESTS", "0")

	_, err := Load()
	assert.ErrorContains(t, err, "RATE_LIMIT_REQUESTS")
}

func TestValidateRetention(t *testing.T) {
	t.Setenv("SNAPSHOT_RETENTION_DAYS", "-1")
	_, err := Load()
	assert.ErrorContains(t, err, "SNAPSHOT_RETENTION_DAYS")

	t.Setenv("SNAPSHOT_RETENTION_DAYS", "14")
	t.Setenv("SNAPSHOT_CLEANUP_INTERVAL", "0s")
	_, err = Load()
	assert.ErrorContains(t, err, "SNAPSHOT_CLEANUP_INTERVAL")

	t.Setenv("SNAPSHOT_CLEANUP_INTERVAL", "30m")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 14, cfg.Retention.Days)
	assert.Equal(t, 30*time.Minute, cfg.Retention.Interval)
}
