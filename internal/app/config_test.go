package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 3, cfg.TxMaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.LookupCacheTTL)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("TX_MAX_ATTEMPTS", "5")
	t.Setenv("COMPANY_NAME", "Acme Ltd")
	t.Setenv("LOOKUP_CACHE_TTL", "90s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 5, cfg.TxMaxAttempts)
	assert.Equal(t, "Acme Ltd", cfg.CompanyName)
	assert.Equal(t, 90*time.Second, cfg.LookupCacheTTL)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv("TX_MAX_ATTEMPTS", "0")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRejectsEmptyDSN(t *testing.T) {
	cfg := Config{TxMaxAttempts: 1}
	assert.Error(t, cfg.validate())
}

func TestTestModeFromEnv(t *testing.T) {
	t.Setenv(TestModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(TestModeEnv, "")
	RefreshTestMode()
	assert.False(t, InTestMode())
}
