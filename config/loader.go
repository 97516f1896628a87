package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "CHANMEM_"
	// Delimiter is the key delimiter for nested config.
	Delimiter = "."
)

// Load builds the configuration with the following priority:
// environment variables over the optional config file over defaults.
// An empty path skips file loading.
//
// Environment variables map flat keys directly and nested keys with a
// double underscore: CHANMEM_RECENT_K -> recent_k,
// CHANMEM_EMBEDDER__DIMENSIONS -> embedder.dimensions.
func Load(path string) (*Config, error) {
	k := koanf.New(Delimiter)

	if err := k.Load(confmap.Provider(defaultsMap(), Delimiter), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, Delimiter, envKey), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "mapstructure"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultsMap() map[string]interface{} {
	d := DefaultConfig()
	return map[string]interface{}{
		"enabled":                d.Enabled,
		"recent_k":               d.RecentK,
		"similar_k":              d.SimilarK,
		"retention_days":         d.RetentionDays,
		"sweep_interval_minutes": d.SweepIntervalMinutes,
		"storage_location":       d.StorageLocation,
		"queue_size":             d.QueueSize,
		"workers":                d.Workers,
		"embedder": map[string]interface{}{
			"dimensions":     d.Embedder.Dimensions,
			"model_path":     d.Embedder.ModelPath,
			"tokenizer_path": d.Embedder.TokenizerPath,
			"library_path":   d.Embedder.LibraryPath,
		},
	}
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", path)
	}
}

// envKey maps CHANMEM_EMBEDDER__DIMENSIONS to embedder.dimensions and
// CHANMEM_RECENT_K to recent_k.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", Delimiter)
}
