package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRuntimeConfig_Defaults(t *testing.T) {
	cfg := NewRuntimeConfig()
	assert.Equal(t, "flowrtd", cfg.ServiceName)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 8, cfg.Actor.Workers)
	assert.Equal(t, 1000, cfg.Transport.WSMaxConnections)
}

func TestLoadRuntimeConfig_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "flowrtd-staging")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ACTOR_WORKERS", "16")

	cfg, err := LoadRuntimeConfig()
	require.NoError(t, err)
	assert.Equal(t, "flowrtd-staging", cfg.ServiceName)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 16, cfg.Actor.Workers)
}

func TestNewRuntimeConfig_HTTPDefaults(t *testing.T) {
	cfg := NewRuntimeConfig()
	assert.Equal(t, int64(8<<20), cfg.HTTP.MaxBodyBytes)
	assert.Equal(t, 30, cfg.HTTP.RequestTimeoutSecs)
	assert.Equal(t, 100, cfg.HTTP.IPRequestsPerSecond)
}

func TestLoadRuntimeConfig_NoEnvKeepsDefaults(t *testing.T) {
	cfg, err := LoadRuntimeConfig()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}
