package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/hallpass")
	t.Setenv("ENV", "")
	t.Setenv("WAITLIST_WAITING_TTL", "")
	t.Setenv("WAITLIST_SWEEP_INTERVAL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "migrations", cfg.MigrationsDir)
	assert.Zero(t, cfg.Waitlist.WaitingTTL)
	assert.Equal(t, time.Minute, cfg.Waitlist.SweepInterval)
	assert.Equal(t, 5, cfg.Bot.RateBurst)
}

func TestLoad_Waitlist(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/hallpass")
	t.Setenv("WAITLIST_WAITING_TTL", "15m")
	t.Setenv("WAITLIST_APPROVED_TTL", "3m")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Waitlist.WaitingTTL)
	assert.Equal(t, 3*time.Minute, cfg.Waitlist.ApprovedTTL)
	assert.Equal(t, 2, cfg.Redis.DB)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("DB_DSN", "")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("DB_DSN", "postgres://localhost/hallpass")
	t.Setenv("WAITLIST_WAITING_TTL", "soon")
	_, err = Load()
	assert.ErrorContains(t, err, "WAITLIST_WAITING_TTL")
}
