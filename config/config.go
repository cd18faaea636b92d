// Package config loads Engram's on-disk configuration: a TOML file at
// ~/.config/engram/config.toml, overridden by ENGRAM_* environment
// variables, via a New() with sane defaults and a LoadFile that unmarshals
// on top of them.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/engram-hq/engram/engramerr"
)

// Config is Engram's full runtime configuration.
type Config struct {
	Store      StoreConfig      `toml:"store"`
	Provider   ProviderConfig   `toml:"provider"`
	Extraction ExtractionConfig `toml:"extraction"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	Daemon     DaemonConfig     `toml:"daemon"`
	RAG        RAGConfig        `toml:"rag"`
	Analytics  AnalyticsConfig  `toml:"analytics"`
}

// StoreConfig locates the knowledge store on disk.
type StoreConfig struct {
	Dir string `toml:"dir"`
}

// ProviderConfig selects the default LLM provider and model.
type ProviderConfig struct {
	Name  string `toml:"name"`
	Model string `toml:"model"`
}

// ExtractionConfig tunes the Extraction Engine's worker pool.
type ExtractionConfig struct {
	Concurrency int `toml:"concurrency"`
	MaxAttempts int `toml:"max_attempts"`
}

// EmbeddingConfig records the Embedding Index's chunk size and overlap. The
// embed package chunks with its own fixed values (750 and 100) and does not
// read these fields.
type EmbeddingConfig struct {
	ChunkSize    int `toml:"chunk_size"`
	ChunkOverlap int `toml:"chunk_overlap"`
}

// DaemonConfig tunes the Daemon/Hook Surface's supervisor loop.
type DaemonConfig struct {
	IntervalMinutes int `toml:"interval_minutes"`
}

// RAGConfig holds top-k and threshold values for semantic search / ask. No
// other package reads it; retrieve.Ask uses a fixed top-k of 5 and
// threshold of 0.2.
type RAGConfig struct {
	TopK      int     `toml:"top_k"`
	Threshold float64 `toml:"threshold"`
}

// AnalyticsConfig holds a retention period for usage events, in days.
// Nothing outside this package reads it, so analytics files are not pruned
// by age.
type AnalyticsConfig struct {
	RetentionDays int `toml:"retention_days"`
}

// New returns a Config populated with Engram's defaults.
func New() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Store:      StoreConfig{Dir: filepath.Join(home, "memory")},
		Provider:   ProviderConfig{Name: "anthropic", Model: "claude-sonnet-4-5"},
		Extraction: ExtractionConfig{Concurrency: 4, MaxAttempts: 3},
		Embedding:  EmbeddingConfig{ChunkSize: 750, ChunkOverlap: 100},
		Daemon:     DaemonConfig{IntervalMinutes: 15},
		RAG:        RAGConfig{TopK: 5, Threshold: 0.2},
		Analytics:  AnalyticsConfig{RetentionDays: 90},
	}
}

// DefaultPath returns ~/.config/engram/config.toml.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "engram", "config.toml")
}

// LoadFile loads configuration from path on top of New's defaults. A
// missing file is not an error: it returns the defaults unchanged, so
// operation works out of the box with zero configuration.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, &engramerr.StoreError{Op: "load_config", Err: err}
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, &engramerr.ParseError{Path: path, Reason: err.Error()}
	}
	return cfg, nil
}

// Load loads configuration from DefaultPath, then applies ENGRAM_*
// environment variable overrides.
func Load() (*Config, error) {
	cfg, err := LoadFile(DefaultPath())
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides fields with ENGRAM_* environment variables when set.
func (c *Config) applyEnv() {
	if v := os.Getenv("ENGRAM_STORE"); v != "" {
		c.Store.Dir = v
	}
	if v := os.Getenv("ENGRAM_PROVIDER"); v != "" {
		c.Provider.Name = v
	}
	if v := os.Getenv("ENGRAM_PROVIDER_MODEL"); v != "" {
		c.Provider.Model = v
	}
	if v := os.Getenv("ENGRAM_EXTRACTION_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Extraction.Concurrency = n
		}
	}
	if v := os.Getenv("ENGRAM_DAEMON_INTERVAL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Daemon.IntervalMinutes = n
		}
	}
}
