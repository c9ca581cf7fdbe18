package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/nidhogg/recall/internal/embedding"
	"github.com/nidhogg/recall/internal/memory"
	"github.com/nidhogg/recall/internal/retrieval"
	"github.com/nidhogg/recall/internal/summarize"
	"github.com/nidhogg/recall/internal/vectorstore"
)

// Config is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Embedding  embedding.Config `json:"embedding"`
	Summarizer summarize.Config `json:"summarizer"`
	Memory     memory.Config    `json:"memory"`
	Retrieval  RetrievalConfig  `json:"retrieval"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type DatabaseConfig struct {
	// SessionStore selects the conversation backend: postgres, redis or memory.
	SessionStore string             `json:"session_store"`
	Postgres     PostgresConfig     `json:"postgres"`
	Redis        RedisConfig        `json:"redis"`
	Qdrant       vectorstore.Config `json:"qdrant"`
	Collection   string             `json:"collection"`
}

type PostgresConfig struct {
	DSN           string `json:"dsn"`
	MigrationsDir string `json:"migrations_dir"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type RetrievalConfig struct {
	Overfetch     int     `json:"overfetch"`
	MinSimilarity float32 `json:"min_similarity"`
	KeywordBoost  float64 `json:"keyword_boost"`
}

// Options converts the retrieval section into ranker options.
func (r RetrievalConfig) Options() retrieval.Options {
	opts := retrieval.DefaultOptions()
	if r.Overfetch > 0 {
		opts.Overfetch = r.Overfetch
	}
	if r.MinSimilarity > 0 {
		opts.MinSimilarity = r.MinSimilarity
	}
	return opts
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Database.SessionStore == "" {
		cfg.Database.SessionStore = "memory"
	}
	if cfg.Database.Collection == "" {
		cfg.Database.Collection = "recall_chunks"
	}
	if cfg.Database.Qdrant.Host == "" {
		cfg.Database.Qdrant.Host = "localhost"
	}
	if cfg.Database.Qdrant.Port == 0 {
		cfg.Database.Qdrant.Port = 6334
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = 1536
	}
}
