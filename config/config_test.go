package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, ioutil.WriteFile(path, []byte(`
storage-dir = "/var/bench"
log-level = "DEBUG"
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/bench", cfg.StorageDir)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "1.0.0", cfg.ApiVersion, "unset keys keep their defaults")
}

func TestLoadExplicitMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestLoadRejectsBadToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, ioutil.WriteFile(path, []byte(`storage-dir = [`), 0644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestStorageRootCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "storage")
	cfg := Config{StorageDir: dir}

	root, err := cfg.StorageRoot()
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(dir), root)

	fi, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}
