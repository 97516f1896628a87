package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 4, cfg.RecentK)
	assert.Equal(t, 12, cfg.SimilarK)
	assert.Equal(t, 0, cfg.RetentionDays)
	assert.Equal(t, 60, cfg.SweepIntervalMinutes)
	assert.Equal(t, "./data", cfg.StorageLocation)
	assert.Equal(t, 256, cfg.QueueSize)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 384, cfg.Embedder.Dimensions)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CHANMEM_RECENT_K", "7")
	t.Setenv("CHANMEM_STORAGE_LOCATION", "/tmp/chanmem")
	t.Setenv("CHANMEM_EMBEDDER__DIMENSIONS", "128")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.RecentK)
	assert.Equal(t, "/tmp/chanmem", cfg.StorageLocation)
	assert.Equal(t, 128, cfg.Embedder.Dimensions)
	// Untouched keys keep their defaults.
	assert.Equal(t, 12, cfg.SimilarK)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chanmem.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
enabled: false
recent_k: 2
similar_k: 6
retention_days: 30
embedder:
  dimensions: 256
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.Enabled)
	assert.Equal(t, 2, cfg.RecentK)
	assert.Equal(t, 6, cfg.SimilarK)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.Equal(t, 256, cfg.Embedder.Dimensions)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, 256, cfg.QueueSize)
}

func TestEnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chanmem.yaml")
	require.NoError(t, os.WriteFile(path, []byte("recent_k: 2\n"), 0644))
	t.Setenv("CHANMEM_RECENT_K", "9")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.RecentK)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("CHANMEM_SIMILAR_K", "0")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadRejectsUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chanmem.toml")
	require.NoError(t, os.WriteFile(path, []byte("recent_k = 2\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestMemoryConfigConversion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SweepIntervalMinutes = 15

	mc := cfg.MemoryConfig()
	assert.Equal(t, cfg.RecentK, mc.RecentK)
	assert.Equal(t, cfg.SimilarK, mc.SimilarK)
	assert.Equal(t, 15*time.Minute, mc.SweepInterval)
}

func TestStoragePaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageLocation = "/var/lib/chanmem"

	assert.Equal(t, filepath.Join("/var/lib/chanmem", "messages.db"), cfg.DatabasePath())
	assert.Equal(t, filepath.Join("/var/lib/chanmem", "index"), cfg.IndexPath())
}
