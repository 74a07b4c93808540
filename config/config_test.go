package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 50, cfg.Collector.MaxAttempts)
	assert.Equal(t, 5, cfg.Collector.IdleThreshold)
	assert.Equal(t, `[data-testid="primaryColumn"]`, cfg.Session.MarkerSelector)
	assert.True(t, cfg.Browser.Headless)
	assert.Contains(t, cfg.Scraper.MediaPatterns, ".m3u8")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("THREADGRAB_MAX_ATTEMPTS", "7")
	t.Setenv("THREADGRAB_MIN_DELAY", "250ms")
	t.Setenv("THREADGRAB_HEADLESS", "false")
	t.Setenv("THREADGRAB_API_KEYS", "a, b ,,c")

	cfg := Load()

	assert.Equal(t, 7, cfg.Collector.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Collector.MinDelay)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Auth.APIKeys)
}

func TestLoad_InvalidEnvKeepsDefault(t *testing.T) {
	t.Setenv("THREADGRAB_IDLE_THRESHOLD", "many")

	cfg := Load()

	assert.Equal(t, 5, cfg.Collector.IdleThreshold)
}

func TestLoadFile_EnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "threadgrab.yaml")
	yml := `
collector:
  max_attempts: 12
  idle_threshold: 3
  max_delay: 900ms
session:
  state_path: /tmp/state.json
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv("THREADGRAB_IDLE_THRESHOLD", "9")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Collector.MaxAttempts)
	assert.Equal(t, 9, cfg.Collector.IdleThreshold)
	assert.Equal(t, 900*time.Millisecond, cfg.Collector.MaxDelay)
	assert.Equal(t, "/tmp/state.json", cfg.Session.StatePath)
	// Untouched sections keep their defaults.
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
