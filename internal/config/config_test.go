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

	assert.Equal(t, defaultAPIPort, cfg.APIPort)
	assert.Equal(t, defaultSignalingPort, cfg.SignalingPort)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.NotEmpty(t, cfg.TokenSecret, "dev secret fills in outside production")
	assert.False(t, cfg.Production())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("API_PORT", "8080")
	t.Setenv("SIGNALING_PORT", "8081")
	t.Setenv("TOKEN_SECRET", "env-secret")
	t.Setenv("TOKEN_TTL", "30m")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.APIPort)
	assert.Equal(t, 8081, cfg.SignalingPort)
	assert.Equal(t, "env-secret", cfg.TokenSecret)
	assert.Equal(t, 30*time.Minute, cfg.TokenTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestProductionRequiresSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("TOKEN_SECRET", "")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("TOKEN_SECRET", "prod-secret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Production())
}

func TestInvalidPortRejected(t *testing.T) {
	t.Setenv("API_PORT", "not-a-port")
	_, err := Load()
	assert.Error(t, err)
}
