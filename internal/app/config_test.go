package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/fieldvault/fieldvault/pkg/errors"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("FIELDVAULT_CRYPTO_SECRET", "unit-test-secret")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.False(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, 100_000, cfg.Crypto.PBKDF2Iterations)
	require.Equal(t, 90*24*time.Hour, cfg.Crypto.KeyMaxAge)
	require.Equal(t, 14*24*time.Hour, cfg.Crypto.RotationWarningWindow)
	require.True(t, cfg.Maintenance.Enabled)
	require.Equal(t, 90, cfg.Maintenance.AuditRetentionDays)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("FIELDVAULT_CRYPTO_SECRET", "unit-test-secret")
	t.Setenv("FIELDVAULT_SERVER_PORT", "9000")
	t.Setenv("FIELDVAULT_CRYPTO_KEY_MAX_AGE", "720h")
	t.Setenv("FIELDVAULT_DATABASE_DRIVER", "postgres")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 9000, cfg.Server.Port)
	require.Equal(t, 30*24*time.Hour, cfg.Crypto.KeyMaxAge)
	require.Equal(t, "postgres", cfg.Database.Driver)
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("FIELDVAULT_CRYPTO_SECRET", "")

	_, err := LoadConfig(t.TempDir())
	require.ErrorIs(t, err, apperrors.ErrConfig)
}

func TestValidateRejectsWeakIterations(t *testing.T) {
	cfg := &Config{
		Crypto: CryptoConfig{
			Secret:                "s",
			PBKDF2Iterations:      1000,
			KeyMaxAge:             time.Hour,
			RotationWarningWindow: time.Minute,
		},
	}
	require.ErrorIs(t, cfg.Validate(), apperrors.ErrConfig)
}
