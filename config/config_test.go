package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirRespectsXDG(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("windows layout")
	}
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, "/tmp/xdg/carremote", Dir())
	assert.Equal(t, "/tmp/xdg/carremote/config.yaml", File())
	assert.Equal(t, "/tmp/xdg/carremote/peers.yaml", PeersFile())
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Zero(t, cfg.ReadTimeout)
	assert.True(t, cfg.AutoConnect)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transport: serial
peer: /dev/rfcomm0
read_timeout: 30s
battery_poll: 5s
starter_seconds: 5
auto_connect: false
serial:
  baud: 38400
redis:
  addr: localhost:6379
http_addr: 127.0.0.1:8080
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "serial", cfg.Transport)
	assert.Equal(t, "/dev/rfcomm0", cfg.Peer)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 5*time.Second, cfg.BatteryPoll)
	assert.Equal(t, 5, cfg.StarterSeconds)
	assert.False(t, cfg.AutoConnect)
	assert.Equal(t, 38400, cfg.Serial.Baud)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "carremote", cfg.Redis.Prefix, "unset keys keep defaults")
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.Equal(t, "127.0.0.1:8080", cfg.HTTPAddr)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"transport": "transport: pigeon\n",
		"starter":   "starter_seconds: 30\n",
		"timeout":   "write_timeout: -1s\n",
		"syntax":    "transport: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestScriptPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	assert.Equal(t, "", Default().ScriptPath())

	require.NoError(t, os.MkdirAll(Dir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(Dir(), "init.lua"), nil, 0o644))
	assert.Equal(t, filepath.Join(Dir(), "init.lua"), Default().ScriptPath())

	cfg := Default()
	cfg.Script = "/etc/car.lua"
	assert.Equal(t, "/etc/car.lua", cfg.ScriptPath())
}
