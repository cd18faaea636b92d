package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	cfg := New()
	assert.Equal(t, 4, cfg.Extraction.Concurrency)
	assert.Equal(t, 3, cfg.Extraction.MaxAttempts)
	assert.Equal(t, 15, cfg.Daemon.IntervalMinutes)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, 90, cfg.Analytics.RetentionDays)
}

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, New().Store.Dir, cfg.Store.Dir)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[store]
dir = "/tmp/engram-store"

[provider]
name = "openai"
model = "gpt-4o"

[extraction]
concurrency = 8

[rag]
top_k = 10
threshold = 0.35
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/engram-store", cfg.Store.Dir)
	assert.Equal(t, "openai", cfg.Provider.Name)
	assert.Equal(t, "gpt-4o", cfg.Provider.Model)
	assert.Equal(t, 8, cfg.Extraction.Concurrency)
	assert.Equal(t, 10, cfg.RAG.TopK)
	assert.InDelta(t, 0.35, cfg.RAG.Threshold, 0.0001)
	// Fields absent from the file keep their default.
	assert.Equal(t, 3, cfg.Extraction.MaxAttempts)
}

func TestLoadFileRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("not = [valid"), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestApplyEnvOverridesFileAndDefaults(t *testing.T) {
	t.Setenv("ENGRAM_STORE", "/env/store")
	t.Setenv("ENGRAM_PROVIDER", "google")
	t.Setenv("ENGRAM_EXTRACTION_CONCURRENCY", "12")
	t.Setenv("ENGRAM_DAEMON_INTERVAL_MINUTES", "5")

	cfg := New()
	cfg.applyEnv()

	assert.Equal(t, "/env/store", cfg.Store.Dir)
	assert.Equal(t, "google", cfg.Provider.Name)
	assert.Equal(t, 12, cfg.Extraction.Concurrency)
	assert.Equal(t, 5, cfg.Daemon.IntervalMinutes)
}

func TestApplyEnvIgnoresMalformedInts(t *testing.T) {
	t.Setenv("ENGRAM_EXTRACTION_CONCURRENCY", "not-a-number")

	cfg := New()
	before := cfg.Extraction.Concurrency
	cfg.applyEnv()

	assert.Equal(t, before, cfg.Extraction.Concurrency)
}
