package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/ytstream/youtube/decipher"
)

// isolate keeps default config locations out of the test.
func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Server{Addr: ":5000", ReadTimeout: 15 * time.Second, WriteTimeout: 2 * time.Minute, ShutdownTimeout: 5 * time.Second}, cfg.Server())
	assert.Equal(t, "./cookies.json", cfg.Cookies().Path)

	f := cfg.Fetch()
	assert.Equal(t, "https://m.youtube.com", f.BaseURL)
	assert.Equal(t, 30*time.Second, f.Timeout)
	assert.Equal(t, 1, f.Retries)
	assert.Zero(t, f.Rate)
	assert.Empty(t, f.NoProxy)

	b := cfg.Bridge()
	assert.Equal(t, decipher.MethodExternal, b.Method)
	assert.Equal(t, "./old", b.WorkDir)
	assert.Equal(t, "./old/yt.js", b.Script)
	assert.Equal(t, "node", b.Interpreter)
	assert.Equal(t, 60*time.Second, b.Timeout)
	assert.False(t, b.UniquePaths)
	assert.Equal(t, 1, b.Concurrency)
	assert.Zero(t, b.CacheTTL)

	l := cfg.Log()
	assert.Equal(t, "info", l.Level)
	assert.Equal(t, "stdout", l.Output)
	assert.Empty(t, l.Components)
}

func TestLoadFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "ytstream.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
addr = "127.0.0.1:8080"

[fetch]
timeout = "10s"
no_proxy = ["localhost", ".internal"]
rate = 2.5

[bridge]
method = "goja"
unique_paths = true
concurrency = 4

[logging]
components = ["bridge", "server"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server().Addr)
	assert.Equal(t, 10*time.Second, cfg.Fetch().Timeout)
	assert.Equal(t, []string{"localhost", ".internal"}, cfg.Fetch().NoProxy)
	assert.Equal(t, 2.5, cfg.Fetch().Rate)
	assert.Equal(t, decipher.MethodGoja, cfg.Bridge().Method)
	assert.True(t, cfg.Bridge().UniquePaths)
	assert.Equal(t, 4, cfg.Bridge().Concurrency)
	assert.Equal(t, []string{"bridge", "server"}, cfg.Log().Components)
}

func TestLoadDefaultLocation(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile("ytstream.toml", []byte("[cookies]\npath = \"/etc/ytstream/cookies.json\"\n"), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/etc/ytstream/cookies.json", cfg.Cookies().Path)
}

func TestLoadEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("YTSTREAM_SERVER_ADDR", ":9000")
	t.Setenv("YTSTREAM_BRIDGE_WORK_DIR", "/tmp/handoff")
	t.Setenv("YTSTREAM_BRIDGE_TIMEOUT", "5s")
	t.Setenv("YTSTREAM_FETCH_RETRIES", "3")
	t.Setenv("YTSTREAM_FETCH_NO_PROXY", "localhost, 10.0.0.1")
	t.Setenv("YTSTREAM_LOGGING_COMPONENTS", "bridge")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server().Addr)
	assert.Equal(t, "/tmp/handoff", cfg.Bridge().WorkDir)
	assert.Equal(t, 5*time.Second, cfg.Bridge().Timeout)
	assert.Equal(t, 3, cfg.Fetch().Retries)
	assert.Equal(t, []string{"localhost", "10.0.0.1"}, cfg.Fetch().NoProxy)
	assert.Equal(t, []string{"bridge"}, cfg.Log().Components)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown method", map[string]string{"YTSTREAM_BRIDGE_METHOD": "python"}},
		{"zero timeout", map[string]string{"YTSTREAM_FETCH_TIMEOUT": "0s"}},
		{"no concurrency", map[string]string{"YTSTREAM_BRIDGE_CONCURRENCY": "0"}},
		{"negative rate", map[string]string{"YTSTREAM_FETCH_RATE": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsUnitlessDurations(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"bridge timeout", "[bridge]\ntimeout = 60\n"},
		{"fetch timeout", "[fetch]\ntimeout = 30\n"},
		{"cache ttl", "[bridge]\ncache_ttl = 300\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			path := filepath.Join(t.TempDir(), "ytstream.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.toml), 0o644))
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "below")
		})
	}

	isolate(t)
	path := filepath.Join(t.TempDir(), "ytstream.toml")
	require.NoError(t, os.WriteFile(path, []byte("[bridge]\ntimeout = \"60s\"\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, cfg.Bridge().Timeout)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	key, val := envKey("YTSTREAM_BRIDGE_UNIQUE_PATHS", "true")
	assert.Equal(t, "bridge.unique_paths", key)
	assert.Equal(t, "true", val)

	key, val = envKey("YTSTREAM_FETCH_NO_PROXY", "a,,b")
	assert.Equal(t, "fetch.no_proxy", key)
	assert.Equal(t, []string{"a", "b"}, val)
}
