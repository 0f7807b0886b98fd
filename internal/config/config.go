// Package config provides configuration loading and structs for the semdex server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Embedding providers.
const (
	ProviderHash = "hash"
	ProviderHTTP = "http"
	ProviderONNX = "onnx"
)

// Removal policies.
const (
	RemovalRebuild   = "rebuild"
	RemovalTombstone = "tombstone"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the catalog database and the keyword index.
type StorageConfig struct {
	DatabasePath     string `yaml:"database_path"`
	KeywordIndexPath string `yaml:"keyword_index_path"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"`
	Dimensions int           `yaml:"dimensions"`
	ModelPath  string        `yaml:"model_path"`
	MaxTokens  int           `yaml:"max_tokens"`
	CacheSize  int           `yaml:"cache_size"`
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
}

// IndexConfig holds semantic index settings.
type IndexConfig struct {
	RemovalPolicy       string  `yaml:"removal_policy"`
	CompactionThreshold float64 `yaml:"compaction_threshold"`
	ClusterIterations   int     `yaml:"cluster_iterations"`
	ClusterSeed         int64   `yaml:"cluster_seed"`
	DefaultK            int     `yaml:"default_k"`
	MaxK                int     `yaml:"max_k"`
	MaxClusters         int     `yaml:"max_clusters"`
}

// WatchConfig holds knowledge-base directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads the config file at path, applies a sibling .env file and SEMDEX_* environment
// overrides, applies defaults, expands paths, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	if err := loadDotEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}
	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with every default applied and environment overrides honored.
func Default() (*Config, error) {
	var cfg Config
	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate reports settings the server cannot run with.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case ProviderHash, ProviderHTTP, ProviderONNX:
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Provider == ProviderHTTP && c.Embedding.BaseURL == "" {
		return errors.New("embedding.base_url is required for the http provider")
	}
	switch c.Index.RemovalPolicy {
	case RemovalRebuild, RemovalTombstone:
	default:
		return fmt.Errorf("unknown removal policy %q", c.Index.RemovalPolicy)
	}
	if c.Index.CompactionThreshold <= 0 || c.Index.CompactionThreshold > 1 {
		return fmt.Errorf("compaction_threshold must be in (0, 1], got %v", c.Index.CompactionThreshold)
	}
	if c.Index.MaxClusters < 1 {
		return fmt.Errorf("max_clusters must be at least 1, got %d", c.Index.MaxClusters)
	}
	if c.Index.DefaultK > c.Index.MaxK {
		return fmt.Errorf("default_k %d exceeds max_k %d", c.Index.DefaultK, c.Index.MaxK)
	}
	return nil
}

// ApplyEnv overrides cfg with SEMDEX_* environment variables.
func ApplyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("SEMDEX_DEBUG"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SEMDEX_DEBUG: %w", err)
		}
		cfg.Debug = b
	}
	if v, ok := os.LookupEnv("SEMDEX_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SEMDEX_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("SEMDEX_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("SEMDEX_EMBEDDING_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("SEMDEX_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("SEMDEX_DATABASE_PATH"); v != "" {
		cfg.Storage.DatabasePath = v
	}
	return nil
}

// loadDotEnv loads path into the process environment if it exists. Variables already set win.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
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
