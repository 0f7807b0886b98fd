package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/semdex/data/db/catalog.db"
	}
	if cfg.Storage.KeywordIndexPath == "" {
		cfg.Storage.KeywordIndexPath = "/usr/local/var/semdex/data/indices/bleve"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderHash
	}
	if cfg.Embedding.Dimensions == 0 {
		switch cfg.Embedding.Provider {
		case ProviderHash:
			cfg.Embedding.Dimensions = 512
		case ProviderONNX:
			cfg.Embedding.Dimensions = 384
		}
	}
	if cfg.Embedding.Provider == ProviderONNX && cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/semdex/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Index.RemovalPolicy == "" {
		cfg.Index.RemovalPolicy = RemovalRebuild
	}
	if cfg.Index.CompactionThreshold == 0 {
		cfg.Index.CompactionThreshold = 0.25
	}
	if cfg.Index.ClusterIterations == 0 {
		cfg.Index.ClusterIterations = 20
	}
	if cfg.Index.DefaultK == 0 {
		cfg.Index.DefaultK = 5
	}
	if cfg.Index.MaxK == 0 {
		cfg.Index.MaxK = 100
	}
	if cfg.Index.MaxClusters == 0 {
		cfg.Index.MaxClusters = 100
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".xlsx"}
	}
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
