package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("FAIR_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "postgres", cfg.DatabaseDriver)
	require.Equal(t, 10, cfg.UploadMaxMB)
	require.Equal(t, 30, cfg.UploadRatePerMinute)
	require.Equal(t, time.Minute, cfg.SummaryCacheTTL)
	require.Equal(t, 1, cfg.ConflictRetries)
	require.False(t, cfg.EnforceProjectGate)
	require.Equal(t, ":8080", cfg.HTTPAddress())
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("FAIR_JWT_SECRET", "secret")
	t.Setenv("FAIR_DATABASE_DRIVER", "SQLite")
	t.Setenv("FAIR_SUMMARY_CACHE_TTL", "30s")
	t.Setenv("FAIR_REVIEW_CONFLICT_RETRIES", "3")
	t.Setenv("FAIR_PROJECT_ENFORCE_GATE", "true")
	t.Setenv("FAIR_APP_PORT", ":9090")
	t.Setenv("FAIR_UPLOAD_RATE_PER_MINUTE", "5")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.DatabaseDriver)
	require.Equal(t, 30*time.Second, cfg.SummaryCacheTTL)
	require.Equal(t, 3, cfg.ConflictRetries)
	require.True(t, cfg.EnforceProjectGate)
	require.Equal(t, 5, cfg.UploadRatePerMinute)
	require.Equal(t, ":9090", cfg.HTTPAddress())
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("FAIR_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("FAIR_JWT_SECRET", "secret")
	t.Setenv("FAIR_DATABASE_DRIVER", "mysql")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsInvalidTTL(t *testing.T) {
	t.Setenv("FAIR_JWT_SECRET", "secret")
	t.Setenv("FAIR_SUMMARY_CACHE_TTL", "soon")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadDisablesUploadLimitForNegativeRate(t *testing.T) {
	t.Setenv("FAIR_JWT_SECRET", "secret")
	t.Setenv("FAIR_UPLOAD_RATE_PER_MINUTE", "-1")

	cfg, err := Load()
	require.NoError(t, err)
	require.Zero(t, cfg.UploadRatePerMinute)
}
