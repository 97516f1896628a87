// Package config loads chanmem configuration from defaults, an
// optional file, and CHANMEM_-prefixed environment variables.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/chanmem/chanmem/memory"
)

// Config is the full configuration surface consumed by the engine.
type Config struct {
	// Enabled toggles the memory engine.
	Enabled bool `mapstructure:"enabled"`

	// RecentK is the size of the chronological recency slice.
	RecentK int `mapstructure:"recent_k"`

	// SimilarK is the total context budget (recency + similarity).
	SimilarK int `mapstructure:"similar_k"`

	// RetentionDays bounds message age; 0 means unbounded.
	RetentionDays int `mapstructure:"retention_days"`

	// SweepIntervalMinutes is how often the retention sweeper fires.
	SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes"`

	// StorageLocation is the directory holding the message database and
	// the persistent vector index.
	StorageLocation string `mapstructure:"storage_location"`

	// QueueSize bounds the embedding job queue.
	QueueSize int `mapstructure:"queue_size"`

	// Workers is the embedding worker count.
	Workers int `mapstructure:"workers"`

	// Embedder configures the embedding provider.
	Embedder EmbedderConfig `mapstructure:"embedder"`
}

// EmbedderConfig holds embedding provider settings.
type EmbedderConfig struct {
	// Dimensions is the embedding vector size.
	Dimensions int `mapstructure:"dimensions"`

	// ModelPath, TokenizerPath, and LibraryPath locate the ONNX model,
	// its tokenizer, and the onnxruntime shared library. Ignored by the
	// mock embedder.
	ModelPath     string `mapstructure:"model_path"`
	TokenizerPath string `mapstructure:"tokenizer_path"`
	LibraryPath   string `mapstructure:"library_path"`
}

// DefaultConfig returns the defaults for a single relay bot.
func DefaultConfig() *Config {
	return &Config{
		Enabled:              true,
		RecentK:              4,
		SimilarK:             12,
		RetentionDays:        0,
		SweepIntervalMinutes: 60,
		StorageLocation:      "./data",
		QueueSize:            256,
		Workers:              2,
		Embedder: EmbedderConfig{
			Dimensions: 384,
		},
	}
}

// Validate checks the configuration for values the engine cannot run
// with.
func (c *Config) Validate() error {
	if c.RecentK < 0 {
		return fmt.Errorf("config: recent_k must be >= 0, got %d", c.RecentK)
	}
	if c.SimilarK <= 0 {
		return fmt.Errorf("config: similar_k must be > 0, got %d", c.SimilarK)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("config: retention_days must be >= 0, got %d", c.RetentionDays)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("config: queue_size must be > 0, got %d", c.QueueSize)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: workers must be > 0, got %d", c.Workers)
	}
	if c.Embedder.Dimensions <= 0 {
		return fmt.Errorf("config: embedder dimensions must be > 0, got %d", c.Embedder.Dimensions)
	}
	return nil
}

// DatabasePath returns the SQLite file location under StorageLocation.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.StorageLocation, "messages.db")
}

// IndexPath returns the vector index directory under StorageLocation.
func (c *Config) IndexPath() string {
	return filepath.Join(c.StorageLocation, "index")
}

// MemoryConfig converts the loaded surface into the engine's config.
func (c *Config) MemoryConfig() *memory.Config {
	return &memory.Config{
		Enabled:       c.Enabled,
		RecentK:       c.RecentK,
		SimilarK:      c.SimilarK,
		RetentionDays: c.RetentionDays,
		SweepInterval: time.Duration(c.SweepIntervalMinutes) * time.Minute,
		QueueSize:     c.QueueSize,
		Workers:       c.Workers,
	}
}
