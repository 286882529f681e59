package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "fabula", cfg.Name)
	assert.Equal(t, 8, cfg.Determine.MaxIterations)
	assert.Equal(t, 2, cfg.Determine.MinIterations)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Determine, cfg.Determine)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fabula.yaml")
	data := []byte(`
determine:
  max_iterations: 12
  min_iterations: 3
  max_refinement_rounds: 2
repository:
  database_path: /tmp/test.db
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Determine.MaxIterations)
	assert.Equal(t, 3, cfg.Determine.MinIterations)
	assert.Equal(t, "/tmp/test.db", cfg.Repository.DatabasePath)
	// Unset sections keep defaults.
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
}

func TestValidateRejectsBadIterationBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Determine.MinIterations = 10
	cfg.Determine.MaxIterations = 5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Determine.MaxIterations = 0
	assert.Error(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "fabula.yaml")

	cfg := DefaultConfig()
	cfg.Determine.MaxIterations = 20
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20, loaded.Determine.MaxIterations)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("FABULA_DB", "/var/db/x.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "test-key", cfg.LLM.APIKey)
	assert.Equal(t, "test-key", cfg.Embedding.GenAIAPIKey)
	assert.Equal(t, "/var/db/x.db", cfg.Repository.DatabasePath)
}
