package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  dsn: \"file::memory:\"\n  driver: sqlite\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "http", cfg.Gateway.Transport)
	assert.Equal(t, 30*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Console.PollInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Console.RefreshDebounce)
	assert.Equal(t, 20, cfg.Commands.HistoryLimit)
	assert.Equal(t, time.Duration(0), cfg.Presence.OfflineAfter, "presence sweeping is opt-in")
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.False(t, cfg.Push.Enabled())
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load("config.example.yaml")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 180*time.Second, cfg.Presence.OfflineAfter)
	assert.Equal(t, 10*time.Minute, cfg.Commands.StaleAfter)
	assert.Equal(t, "signage/devices", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 2, cfg.WorkerPool.Size)
}

func TestLoad_AuthWithoutSecretIsDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  enabled: true\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Auth.Enabled)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
