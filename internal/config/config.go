// Package config loads server configuration from an optional .env file, an
// optional YAML file and JOBSEARCH_* environment variables.
package config

import (
	"time"

	"github.com/dshills/jobsearch-mcp/internal/embedder"
	"github.com/dshills/jobsearch-mcp/internal/ranker"
	"github.com/dshills/jobsearch-mcp/internal/storage/postgres"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the main application configuration struct.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Ranking   RankingConfig   `mapstructure:"ranking"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type DatabaseConfig struct {
	Driver         string `mapstructure:"driver"`
	Path           string `mapstructure:"path"` // sqlite file
	DSN            string `mapstructure:"dsn"`  // postgres
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
}

// Postgres returns the pool settings for the postgres store.
func (d DatabaseConfig) Postgres() postgres.Config {
	return postgres.Config{DSN: d.DSN, MaxConnections: d.MaxConnections, MaxIdle: d.MaxIdle}
}

type EmbeddingConfig struct {
	Provider      string        `mapstructure:"provider"`
	Model         string        `mapstructure:"model"`
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	Dimension     int           `mapstructure:"dimension"`
	CacheSize     int           `mapstructure:"cache_size"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Redis         RedisConfig   `mapstructure:"redis"`
}

// Embedder returns the embedder factory settings. The shared cache tier
// is wired by the caller since it needs a live client.
func (e EmbeddingConfig) Embedder() embedder.Config {
	return embedder.Config{
		Provider:      e.Provider,
		Model:         e.Model,
		APIKey:        e.APIKey,
		BaseURL:       e.BaseURL,
		Dimension:     e.Dimension,
		CacheSize:     e.CacheSize,
		RatePerSecond: e.RatePerSecond,
		Timeout:       e.Timeout,
	}
}

// RedisConfig enables the shared query-embedding cache when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type ChunkingConfig struct {
	MaxTokens     int `mapstructure:"max_tokens"`
	OverlapTokens int `mapstructure:"overlap_tokens"`
}

type RankingConfig struct {
	SemanticRatio     float64 `mapstructure:"semantic_ratio"`
	TopChunksPerQuery int     `mapstructure:"top_chunks_per_query"`
	MinChunkScore     float64 `mapstructure:"min_chunk_score"`
	MaxChunksPerJob   int     `mapstructure:"max_chunks_per_job"`
	Window            string  `mapstructure:"window"`
	CacheSize         int     `mapstructure:"cache_size"`
}

// Fusion returns the ranker settings.
func (r RankingConfig) Fusion() ranker.Config {
	return ranker.Config{
		SemanticRatio:   r.SemanticRatio,
		MinChunkScore:   r.MinChunkScore,
		MaxChunksPerJob: r.MaxChunksPerJob,
		Window:          ranker.Window(r.Window),
	}
}

type IngestConfig struct {
	PoolSize int `mapstructure:"pool_size"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the metrics listener
}
