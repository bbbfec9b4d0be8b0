package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 20, cfg.Scan.Concurrency)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr())
}

func TestLoadExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bughunter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scan:
  concurrency: 35
  dns_timeout: 1500ms
ct:
  enabled: false
store:
  backend: bolt
  db_path: /tmp/sessions.db
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 35, cfg.Scan.Concurrency)
	assert.Equal(t, 1500*time.Millisecond, cfg.Scan.DNSTimeout)
	assert.False(t, cfg.CT.Enabled)
	assert.Equal(t, "bolt", cfg.Store.Backend)
	// untouched keys keep their defaults
	assert.Equal(t, 4*time.Second, cfg.Scan.HTTPTimeout)
	assert.Equal(t, "https://crt.sh/", cfg.CT.Endpoint)
	assert.True(t, cfg.Scan.VerifyHTTP)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadSearchFallsBackToDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Scan, cfg.Scan)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BUGHUNTER_SCAN_CONCURRENCY", "7")
	t.Setenv("BUGHUNTER_LOG_FORMAT", "json")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Scan.Concurrency)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 0
	cfg.Scan.DNSTimeout = 0
	cfg.Store.Backend = "redis"
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "scan.dns_timeout")
	assert.Contains(t, err.Error(), "store.backend")
	assert.Contains(t, err.Error(), "log.format")
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bughunter.yaml")
	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().CT, cfg.CT)
	assert.Equal(t, DefaultConfig().Server.ShutdownTimeout, cfg.Server.ShutdownTimeout)
}
