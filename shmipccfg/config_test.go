package shmipccfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	d := Defaults()
	require.EqualValues(t, 1024, d.NodeCount)
	require.EqualValues(t, 4096, d.NodeSize)
	require.Equal(t, time.Second, d.ReadTimeout())
	require.Equal(t, time.Second, d.WriteTimeout())
	require.Equal(t, 30*time.Second, d.SpinAcquireTimeout())
	require.True(t, d.AutoReconnect)
}

func TestLoadParsesOptionsAndListenPoints(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
[options]
node_count = 512
node_size = 2048
read_timeout_ms = 500
write_timeout_ms = 750
spin_acquire_timeout_ms = 15000
auto_reconnect = false

[listen.demo]
name = "shmipc-demo"
enabled = true
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.EqualValues(t, 512, cfg.Options.NodeCount)
	require.EqualValues(t, 2048, cfg.Options.NodeSize)
	require.Equal(t, 500*time.Millisecond, cfg.Options.ReadTimeout())
	require.False(t, cfg.Options.AutoReconnect)

	require.Contains(t, cfg.Listen, "demo")
	require.Equal(t, "shmipc-demo", cfg.Listen["demo"].Name)
	require.True(t, cfg.Listen["demo"].Enabled)
}

func TestLoadFillsDefaultsForOmittedOptions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[listen.demo]
name = "shmipc-demo"
enabled = true
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Defaults(), cfg.Options)
}

func TestLoadReturnsErrorForMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	require.True(t, os.IsNotExist(err))
}
