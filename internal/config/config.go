// Package config holds foldmem configuration: a YAML file for process-level
// settings (database path, embedding providers, logging) and a DB-backed
// key/value table for runtime tunables such as the drift aperture.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all foldmem configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Worker    WorkerConfig    `yaml:"worker"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StorageConfig configures the SQLite substrate.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`

	// Connection cap. SQLite is effectively single-writer; reads may fan
	// out up to this limit.
	MaxOpenConns int `yaml:"max_open_conns"`

	// Require the sqlite-vec extension or fail fast at boot.
	RequireVec bool `yaml:"require_vec"`
}

// EmbeddingConfig configures the embedding provider chain.
type EmbeddingConfig struct {
	// Provider: "genai" or "ollama". The other acts as fallback when its
	// settings are present.
	Provider string `yaml:"provider"`

	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"` // Default: "gemini-embedding-001"

	OllamaEndpoint string `yaml:"ollama_endpoint"` // Default: "http://localhost:11434"
	OllamaModel    string `yaml:"ollama_model"`    // Default: "embeddinggemma"

	CacheCapacity int    `yaml:"cache_capacity"` // Default: 10000 entries
	CacheTTL      string `yaml:"cache_ttl"`      // Default: "1h"

	// Per-call timeout and retry budget for provider requests.
	Timeout string `yaml:"timeout"` // Default: "30s"
	Retries int    `yaml:"retries"` // Default: 2
}

// WorkerConfig configures the background task supervisor.
type WorkerConfig struct {
	QueueSize int `yaml:"queue_size"` // Default: 256
	Workers   int `yaml:"workers"`    // Default: 4

	// Delay before semantic consolidation runs after an ingest, letting
	// the inserting transaction settle.
	ConsolidationDelay string `yaml:"consolidation_delay"` // Default: "1s"
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "foldmem",
		Version: "0.3.0",
		Storage: StorageConfig{
			DatabasePath: ".foldmem/memory.db",
			MaxOpenConns: 50,
		},
		Embedding: EmbeddingConfig{
			Provider:       "genai",
			GenAIModel:     "gemini-embedding-001",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			CacheCapacity:  10000,
			CacheTTL:       "1h",
			Timeout:        "30s",
			Retries:        2,
		},
		Worker: WorkerConfig{
			QueueSize:          256,
			Workers:            4,
			ConsolidationDelay: "1s",
		},
	}
}

// Load reads configuration from path, layering file values and environment
// overrides on top of the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides layers FOLDMEM_* environment variables over the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FOLDMEM_DB_PATH"); v != "" {
		cfg.Storage.DatabasePath = v
	}
	if v := os.Getenv("FOLDMEM_GENAI_API_KEY"); v != "" {
		cfg.Embedding.GenAIAPIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && cfg.Embedding.GenAIAPIKey == "" {
		cfg.Embedding.GenAIAPIKey = v
	}
	if v := os.Getenv("FOLDMEM_OLLAMA_ENDPOINT"); v != "" {
		cfg.Embedding.OllamaEndpoint = v
	}
	if v := os.Getenv("FOLDMEM_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("FOLDMEM_DEBUG"); v == "1" || v == "true" {
		cfg.Logging.Debug = true
	}
}

// Duration parses a duration field, falling back when empty or malformed.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
