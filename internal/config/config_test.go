package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, ".llmc/index.db", cfg.Storage.IndexPath)
	require.NoError(t, cfg.Validate())
}

func TestLoadParsesYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  index_path: custom/index.db
daemon:
  tick_seconds: 60
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "custom/index.db", cfg.Storage.IndexPath)
	require.Equal(t, 60, cfg.Daemon.TickSeconds)
	// Untouched sections keep their defaults.
	require.Equal(t, "local_small", cfg.Enrichment.StartTier)
}

func TestEnvOverridesTakePrecedence(t *testing.T) {
	t.Setenv("LLMC_INDEX_PATH", "/tmp/env-index.db")
	t.Setenv("LLMC_TICK_SECONDS", "42")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, "/tmp/env-index.db", cfg.Storage.IndexPath)
	require.Equal(t, 42, cfg.Daemon.TickSeconds)
}

func TestValidateRejectsUnknownCascadeBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enrichment.Cascade = []string{"ghost_tier"}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroDimProfile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Embeddings["default"] = EmbeddingProfile{Provider: "ollama", Model: "x", Dim: 0}
	require.Error(t, cfg.Validate())
}

func TestSaveRoundTrips(t *testing.T) {
	cfg := DefaultConfig()
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Storage.IndexPath, loaded.Storage.IndexPath)
	require.Equal(t, cfg.Enrichment.Cascade, loaded.Enrichment.Cascade)
}
