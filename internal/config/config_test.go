package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("DB_USER", "shop")
	t.Setenv("DB_NAME", "shop")
	t.Setenv("JWT_ACCESS_SECRET", "access-secret")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, 24*time.Hour, cfg.VerifyTTL)
	assert.Equal(t, time.Hour, cfg.ResetTTL)
	assert.Equal(t, "admin_token", cfg.AdminCookie)
	assert.True(t, cfg.AuthFailClosed)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("DB_USER", "")
	t.Setenv("DB_NAME", "")
	t.Setenv("JWT_ACCESS_SECRET", "")
	t.Setenv("JWT_REFRESH_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_USER")
	assert.Contains(t, err.Error(), "JWT_REFRESH_SECRET")
}

func TestLoadRejectsSharedSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_REFRESH_SECRET", "access-secret")

	_, err := Load()
	assert.Error(t, err)
}

func TestRateLimitPolicies(t *testing.T) {
	t.Setenv("RATE_LIMIT_RESET_MAX", "0")

	cfg := LoadRateLimitConfig()
	assert.True(t, cfg.FailOpen)
	assert.Equal(t, RatePolicy{Prefix: "auth", Window: 15 * time.Minute, Max: 5}, cfg.Auth)
	assert.Equal(t, RatePolicy{Prefix: "api", Window: 15 * time.Minute, Max: 100}, cfg.API)
	assert.Equal(t, 1, cfg.PasswordReset.Max)
	assert.Equal(t, time.Hour, cfg.PasswordReset.Window)
}

func TestEnvBoolFallback(t *testing.T) {
	t.Setenv("SOME_FLAG", "maybe")
	assert.True(t, envBool("SOME_FLAG", true))
	t.Setenv("SOME_FLAG", "off")
	assert.False(t, envBool("SOME_FLAG", true))
}
