// Package config provides configuration loading and structs for the Tazune server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Cache     CacheConfig     `yaml:"cache"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the path to the bookmark archive database. WatchDatabase
// enables the fsnotify watcher that invalidates caches when another process
// writes to the database.
type StorageConfig struct {
	DatabasePath  string `yaml:"database_path"`
	WatchDatabase bool   `yaml:"watch_database"`
}

// LLMConfig holds settings for the chat/embeddings service. The API key is
// read from the environment variable named by APIKeyEnv, never from the file.
type LLMConfig struct {
	BaseURL            string `yaml:"base_url"`
	APIKeyEnv          string `yaml:"api_key_env"`
	ChatModel          string `yaml:"chat_model"`
	EmbeddingModel     string `yaml:"embedding_model"`
	MaxTokens          int    `yaml:"max_tokens"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
	EmbeddingCacheSize int    `yaml:"embedding_cache_size"`
}

// Timeout returns the request timeout as a duration.
func (c *LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetrievalConfig holds staged-search settings.
type RetrievalConfig struct {
	ResultCap         int `yaml:"result_cap"`
	SemanticThreshold int `yaml:"semantic_threshold"`
	SemanticLimit     int `yaml:"semantic_limit"`
	ContextItems      int `yaml:"context_items"`
	HistoryLimit      int `yaml:"history_limit"`
}

// ScoringConfig holds hybrid scoring weights and inclusion thresholds. The
// defaults were tuned empirically against a real archive; treat them as
// tunables, not derived quantities.
type ScoringConfig struct {
	SemanticWeight   float64 `yaml:"semantic_weight"`
	KeywordWeight    float64 `yaml:"keyword_weight"`
	MinSemanticScore float64 `yaml:"min_semantic_score"`
	MinKeywordScore  float64 `yaml:"min_keyword_score"`
	MinHybridScore   float64 `yaml:"min_hybrid_score"`
}

// CacheConfig holds snapshot cache settings.
type CacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

// TTL returns the cache time-to-live as a duration.
func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Load reads and parses the config file at path, expands paths, and applies
// defaults. Returns an error if the file cannot be read or parsed.
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

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home directory.
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
