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

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9101, cfg.Server.Port)
	assert.True(t, cfg.Server.APILoggingEnabled)
	assert.Equal(t, 1, cfg.Commands.NumWorkers)
	assert.Equal(t, 64, cfg.Commands.QueueSize)
	assert.Equal(t, 30*time.Second, cfg.Docker.StopTimeout)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 60*time.Second, cfg.Metrics.Interval)
	assert.Empty(t, cfg.Upstream.BaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9200")
	t.Setenv("NUM_WORKERS", "4")
	t.Setenv("API_LOGGING_ENABLED", "false")
	t.Setenv("METRICS_INTERVAL", "15s")
	t.Setenv("FLEET_API_BASE_URL", "https://fleet.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Commands.NumWorkers)
	assert.False(t, cfg.Server.APILoggingEnabled)
	assert.Equal(t, 15*time.Second, cfg.Metrics.Interval)
	assert.Equal(t, "https://fleet.example.com", cfg.Upstream.BaseURL)
	assert.Equal(t, "127.0.0.1:9200", cfg.Addr())
}

func TestLoadAcceptsPythonStyleBool(t *testing.T) {
	// The container image historically sets API_LOGGING_ENABLED=True.
	t.Setenv("API_LOGGING_ENABLED", "True")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Server.APILoggingEnabled)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port zero", "PORT", "0"},
		{"port too large", "PORT", "70000"},
		{"workers zero", "NUM_WORKERS", "0"},
		{"negative workers", "NUM_WORKERS", "-2"},
		{"bad log level", "LOG_LEVEL", "loud"},
		{"zero queue", "COMMAND_QUEUE_SIZE", "0"},
		{"zero stop timeout", "CONTAINER_STOP_TIMEOUT", "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestValidateDirect(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Docker.ManagedLabel = ""
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MANAGED_CONTAINER_LABEL")

	cfg, err = Load()
	require.NoError(t, err)
	cfg.Upstream.BaseURL = "https://fleet.example.com"
	cfg.Upstream.PollInterval = 0
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COMMAND_POLL_INTERVAL")
}
