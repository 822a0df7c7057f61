package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("APP_PORT", "3000")
	t.Setenv("SESSION_TTL", "")
	t.Setenv("OTEL_ENABLED", "")

	cfg := FromEnv()

	assert.Equal(t, "3000", cfg.App.Port)
	assert.Equal(t, time.Duration(0), cfg.Session.TTL)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "8080")
	t.Setenv("GO_ENV", "production")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("DATA_LAYER_DSN", "postgres://localhost/chat")

	cfg := FromEnv()

	assert.Equal(t, "8080", cfg.App.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "postgres://localhost/chat", cfg.DataLayer.DSN)
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("SESSION_CLEANUP_INTERVAL", "soon")
	t.Setenv("OTEL_ENABLED", "maybe")
	t.Setenv("SESSION_RECONNECT_GRACE", "")

	cfg := FromEnv()

	assert.Equal(t, 10*time.Minute, cfg.Session.CleanupInterval)
	assert.Equal(t, time.Minute, cfg.Session.ReconnectGrace)
	assert.False(t, cfg.Tracing.Enabled)
}
