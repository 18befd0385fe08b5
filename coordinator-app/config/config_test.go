package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "log:\n  level: debug\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.API.ListenAddr)
	require.Equal(t, 5, cfg.Coordinator.MaxConcurrentRequests)
	require.Equal(t, 30*time.Second, cfg.Coordinator.DefaultTimeout)
	require.Equal(t, 10*time.Second, cfg.Coordinator.SweepInterval)
	require.Equal(t, "debug", cfg.Log.Level)
	require.True(t, cfg.Metrics.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
api:
  listen_addr: ":9090"
coordinator:
  max_concurrent_requests: 12
  default_timeout: 5s
fetch:
  user_agent: "custom/2.0"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.API.ListenAddr)
	require.Equal(t, 12, cfg.Coordinator.MaxConcurrentRequests)
	require.Equal(t, 5*time.Second, cfg.Coordinator.DefaultTimeout)
	require.Equal(t, "custom/2.0", cfg.Fetch.UserAgent)
}

func TestValidateRejectsBadValues(t *testing.T) {
	path := writeConfig(t, "coordinator:\n  max_concurrent_requests: -1\n")
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "max_concurrent_requests")
}

func TestValidateStaleThresholdCoversTimeout(t *testing.T) {
	path := writeConfig(t, "coordinator:\n  default_timeout: 10m\n  stale_threshold: 1m\n")
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "stale_threshold")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
