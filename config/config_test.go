package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	t.Setenv("NATS_SERVERS", "")
	t.Setenv("NATS_TIMEOUT", "")

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	configContent := `
node_id: "worker-1"
servers:
  - "nats://10.0.0.1:4222"
  - "nats://10.0.0.2:4222"
timeout: "5s"
log_level: "debug"
codec: "msgpack"

metrics:
  enabled: true
  listen_addr: ":9191"
`

	err := os.WriteFile(configFile, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, "worker-1", cfg.NodeID)
	assert.Equal(t, []string{"nats://10.0.0.1:4222", "nats://10.0.0.2:4222"}, cfg.Servers)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "msgpack", cfg.Codec)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9191", cfg.Metrics.ListenAddr)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NATS_SERVERS", "")
	t.Setenv("NATS_TIMEOUT", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{DefaultServer}, cfg.Servers)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.Codec)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9090", cfg.Metrics.ListenAddr)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("NATS_SERVERS", "nats://a:4222, nats://b:4222")
	t.Setenv("NATS_TIMEOUT", "2.5")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.Servers)
	assert.Equal(t, 2500*time.Millisecond, cfg.Timeout)
}

func TestLoadBadTimeout(t *testing.T) {
	t.Setenv("NATS_TIMEOUT", "soon")

	_, err := Load("")
	assert.Error(t, err)
}

func TestSplitServers(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitServers("a,b"))
	assert.Equal(t, []string{"a", "b"}, SplitServers(" a , b ,"))
	assert.Empty(t, SplitServers(" , "))
}

func TestParseTimeout(t *testing.T) {
	d, err := ParseTimeout("", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	d, err = ParseTimeout("500ms", 0)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, d)

	d, err = ParseTimeout("30", 0)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	d, err = ParseTimeout("0.5", 0)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, d)

	_, err = ParseTimeout("never", 0)
	assert.Error(t, err)
}
