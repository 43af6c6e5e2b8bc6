package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("IDENTITY_URL", "http://127.0.0.1:9999")
	t.Setenv("IDENTITY_ANON_KEY", "anon")
	t.Setenv("IDENTITY_SERVICE_KEY", "service")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8085", cfg.AppAddr)
	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, 8*time.Second, cfg.RecoveryWait)
	assert.Equal(t, 3*time.Second, cfg.RedirectDelay)
	assert.Equal(t, 30*time.Minute, cfg.SagaStallAfter)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresIdentitySettings(t *testing.T) {
	t.Setenv("IDENTITY_URL", "")
	t.Setenv("IDENTITY_ANON_KEY", "")
	t.Setenv("IDENTITY_SERVICE_KEY", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRejectsSharedKeys(t *testing.T) {
	setRequiredEnv(t)
	// Handing the anon key to the elevated slot would silently strip every
	// admin call of its privileges.
	t.Setenv("IDENTITY_SERVICE_KEY", "anon")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestIsProduction(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "production")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}
