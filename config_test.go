package drizzle

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFile(t *testing.T) {
	c, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig, *c)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
port: 7000
download:
  pipeline_depth: 8
  read_timeout: 45s
tracker:
  user_agent: test
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0600))
	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, c.Port)
	assert.Equal(t, 8, c.Download.PipelineDepth)
	assert.Equal(t, 45*time.Second, c.Download.ReadTimeout)
	assert.Equal(t, "test", c.Tracker.UserAgent)
	// Other values come from default config.
	assert.Equal(t, DefaultConfig.Download.MaxPeers, c.Download.MaxPeers)
	assert.Equal(t, DefaultConfig.Tracker.NumWant, c.Tracker.NumWant)
}

func TestLoadConfigUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("no_such_key: 1\n"), 0600))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dir", "config.yaml")
	c := DefaultConfig
	c.Download.SpeedLimit = 1024
	require.NoError(t, c.Save(path))

	c2, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, c, *c2)
}
