// Package config provides configuration loading and structs for the Mitsuke server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Index   IndexConfig   `yaml:"index"`
	Search  SearchConfig  `yaml:"search"`
	AI      AIConfig      `yaml:"ai"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the metadata database and the postings index.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	PostingsPath string `yaml:"postings_path"`
}

// IndexConfig holds indexing settings.
type IndexConfig struct {
	Extensions  []string `yaml:"extensions"`
	Workers     int      `yaml:"workers"`
	CommitBatch int      `yaml:"commit_batch"`
}

// SearchConfig holds search and highlighting settings.
type SearchConfig struct {
	DefaultLimit    int     `yaml:"default_limit"`
	MaxLimit        int     `yaml:"max_limit"`
	TitleBoost      float64 `yaml:"title_boost"`
	ExpansionWeight float64 `yaml:"expansion_weight"`
	SnippetContext  int     `yaml:"snippet_context"`
	TopKCandidates  int     `yaml:"top_k_candidates"`
}

// AIConfig holds adapter-level settings. Provider credentials are never read
// from here; they arrive fully resolved with each request.
type AIConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	CacheSize      int `yaml:"cache_size"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.PostingsPath = expandPath(cfg.Storage.PostingsPath, configDir)

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
