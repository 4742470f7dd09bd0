package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFiles_Defaults(t *testing.T) {
	t.Setenv("PSDOCLING_STATE_DIR", "")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, 8081, config.Web.Port)
	assert.Equal(t, filepath.Join(os.TempDir(), "psdocling"), config.Storage.StateDir)
	assert.Equal(t, filepath.Join(config.Storage.StateDir, "queue.json"), config.Storage.QueueFile)
	assert.Equal(t, filepath.Join(config.Storage.StateDir, "status.json"), config.Storage.StatusFile)
	assert.Equal(t, config.Storage.StateDir, config.Lock.Dir)
	assert.Equal(t, "5s", config.Lock.Timeout)
}

func TestLoadFromFiles_LaterFileOverrides(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	override := filepath.Join(dir, "override.toml")

	require.NoError(t, os.WriteFile(base, []byte(`
[server]
port = 9000
host = "0.0.0.0"

[storage]
state_dir = "/srv/psdocling"
`), 0644))
	require.NoError(t, os.WriteFile(override, []byte(`
[server]
port = 9100

[engine]
command = ["docling-run"]
`), 0644))

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, 9100, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, []string{"docling-run"}, config.Engine.Command)
	assert.Equal(t, filepath.Join("/srv/psdocling", "uploads"), config.Storage.UploadsDir)
}

func TestLoadFromFiles_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "psdocling.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 9000\n"), 0644))

	t.Setenv("PSDOCLING_SERVER_PORT", "9500")
	t.Setenv("PSDOCLING_ENGINE_COMMAND", "python3 convert.py --quiet")
	t.Setenv("PSDOCLING_LOG_OUTPUT", "stdout, file")

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 9500, config.Server.Port)
	assert.Equal(t, []string{"python3", "convert.py", "--quiet"}, config.Engine.Command)
	assert.Equal(t, []string{"stdout", "file"}, config.Logging.Output)
}

func TestLoadFromFiles_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nport = "), 0644))

	_, err := LoadFromFiles(path)
	assert.Error(t, err)

	_, err = LoadFromFiles(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()
	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 8080, config.Server.Port)

	ApplyFlagOverrides(config, 7000, "example.local")
	assert.Equal(t, 7000, config.Server.Port)
	assert.Equal(t, "example.local", config.Server.Host)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 2*time.Second, ParseDuration("2s", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("soon", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("-1s", time.Minute))
}
