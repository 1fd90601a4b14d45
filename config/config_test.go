package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "localhost", cfg.DBHost)
	assert.Equal(t, "5432", cfg.DBPort)
	assert.Equal(t, "nodetalk", cfg.DBName)
	assert.Equal(t, "localhost:6379", cfg.RedisURL)
	assert.Equal(t, "guest@nodetalk.com", cfg.GuestEmail)
	assert.Equal(t, "uploads/avatars", cfg.AvatarUploadDir)
	assert.False(t, cfg.TracingEnabled)
	assert.Equal(t, "stdout", cfg.TracingExporter)
	assert.InDelta(t, 1.0, cfg.TracingSampleRatio, 0.001)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("GUEST_EMAIL", "demo@example.com")

	cfg := LoadConfig()

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, "demo@example.com", cfg.GuestEmail)
}
