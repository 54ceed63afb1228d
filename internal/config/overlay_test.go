package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOverlay(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "overlay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestOverlayApply(t *testing.T) {
	base, err := Load()
	require.NoError(t, err)

	path := writeOverlay(t, `
log:
  level: debug
metrics:
  interval: 10s
upstream:
  base_url: https://fleet.example.com
  api_key: secret
rate_limit:
  rps: 50
  burst: 100
`)

	overlay, err := LoadOverlay(path)
	require.NoError(t, err)

	merged, err := overlay.Apply(base)
	require.NoError(t, err)

	assert.Equal(t, "debug", merged.Log.Level)
	assert.Equal(t, 10*time.Second, merged.Metrics.Interval)
	assert.Equal(t, "https://fleet.example.com", merged.Upstream.BaseURL)
	assert.Equal(t, "secret", merged.Upstream.APIKey)
	assert.Equal(t, 50.0, merged.Server.RateLimitRPS)
	assert.Equal(t, 100, merged.Server.RateLimitBurst)

	// Untouched settings keep their environment-derived values.
	assert.Equal(t, 9101, merged.Server.Port)
	assert.True(t, merged.Metrics.Enabled)

	// The base configuration is not mutated.
	assert.Equal(t, "info", base.Log.Level)
}

func TestOverlayApplyPartial(t *testing.T) {
	base, err := Load()
	require.NoError(t, err)

	path := writeOverlay(t, "log:\n  level: warn\n")

	overlay, err := LoadOverlay(path)
	require.NoError(t, err)

	merged, err := overlay.Apply(base)
	require.NoError(t, err)

	assert.Equal(t, "warn", merged.Log.Level)
	assert.Equal(t, base.Metrics.Interval, merged.Metrics.Interval)
}

func TestOverlayApplyInvalid(t *testing.T) {
	base, err := Load()
	require.NoError(t, err)

	path := writeOverlay(t, "log:\n  level: shouting\n")

	overlay, err := LoadOverlay(path)
	require.NoError(t, err)

	_, err = overlay.Apply(base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}

func TestLoadOverlayBadYAML(t *testing.T) {
	path := writeOverlay(t, "log: [unclosed")

	_, err := LoadOverlay(path)
	require.Error(t, err)
}

func TestLoadOverlayMissingFile(t *testing.T) {
	_, err := LoadOverlay(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestWatcherReload(t *testing.T) {
	base, err := Load()
	require.NoError(t, err)

	path := writeOverlay(t, "log:\n  level: info\n")

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, base, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "debug", cfg.Log.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for overlay reload")
	}
}

func TestWatcherAppliesLastOfRapidWrites(t *testing.T) {
	base, err := Load()
	require.NoError(t, err)

	path := writeOverlay(t, "log:\n  level: info\n")

	reloaded := make(chan *Config, 8)
	w, err := NewWatcher(path, base, func(cfg *Config) {
		reloaded <- cfg
	})
	require.NoError(t, err)
	defer w.Close()

	// Editor-style saves arrive as quick bursts, sometimes with partial
	// content in between; only the final write may take effect.
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o644))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: error\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "error", cfg.Log.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for overlay reload")
	}
}

func TestWatcherIgnoresInvalidOverlay(t *testing.T) {
	base, err := Load()
	require.NoError(t, err)

	path := writeOverlay(t, "log:\n  level: info\n")

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, base, func(cfg *Config) {
		reloaded <- cfg
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: nonsense\n"), 0o644))

	select {
	case <-reloaded:
		t.Fatal("invalid overlay should not trigger a reload")
	case <-time.After(500 * time.Millisecond):
	}
}
