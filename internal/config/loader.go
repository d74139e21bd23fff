package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dshills/jobsearch-mcp/internal/chunker"
	"github.com/dshills/jobsearch-mcp/internal/embedder"
	"github.com/dshills/jobsearch-mcp/internal/logging"
	"github.com/dshills/jobsearch-mcp/internal/ranker"
	"github.com/dshills/jobsearch-mcp/internal/storage"
)

// EnvPrefix prefixes every environment override, e.g. JOBSEARCH_DATABASE_DRIVER.
const EnvPrefix = "JOBSEARCH"

// Load reads .env from the working directory if present, then the YAML
// file at path (optional, "" skips it), then environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyLegacyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// DefaultDatabasePath is ~/.jobsearch/jobs.db, or jobs.db when the home
// directory is unknown.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "jobs.db"
	}
	return filepath.Join(home, ".jobsearch", "jobs.db")
}

// Every key needs a default so AutomaticEnv can override it on Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", DefaultDatabasePath())
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle", 5)

	v.SetDefault("embedding.provider", "")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.dimension", 0)
	v.SetDefault("embedding.cache_size", 10000)
	v.SetDefault("embedding.rate_per_second", 0)
	v.SetDefault("embedding.timeout", "30s")
	v.SetDefault("embedding.redis.addr", "")
	v.SetDefault("embedding.redis.password", "")
	v.SetDefault("embedding.redis.db", 0)
	v.SetDefault("embedding.redis.prefix", "jobsearch:emb:")
	v.SetDefault("embedding.redis.ttl", "24h")

	v.SetDefault("chunking.max_tokens", chunker.DefaultMaxTokens)
	v.SetDefault("chunking.overlap_tokens", chunker.DefaultOverlapTokens)

	v.SetDefault("ranking.semantic_ratio", ranker.DefaultSemanticRatio)
	v.SetDefault("ranking.top_chunks_per_query", storage.DefaultTopChunks)
	v.SetDefault("ranking.min_chunk_score", ranker.DefaultMinChunkScore)
	v.SetDefault("ranking.max_chunks_per_job", ranker.DefaultMaxChunksPerJob)
	v.SetDefault("ranking.window", string(ranker.WindowUnbounded))
	v.SetDefault("ranking.cache_size", 256)

	v.SetDefault("ingest.pool_size", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("metrics.addr", "")
}

// applyLegacyEnv fills settings from the variables the embedder package
// has always honoured.
func applyLegacyEnv(cfg *Config) {
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = embedder.DetectProvider()
	}
	cfg.Embedding.Provider = strings.ToLower(cfg.Embedding.Provider)

	if cfg.Embedding.APIKey != "" {
		return
	}
	switch cfg.Embedding.Provider {
	case embedder.ProviderJina:
		cfg.Embedding.APIKey = os.Getenv(embedder.EnvJinaAPIKey)
	case embedder.ProviderOpenAI:
		cfg.Embedding.APIKey = os.Getenv(embedder.EnvOpenAIAPIKey)
	}
}

// Validate checks settings that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database.path is required for sqlite")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}

	switch c.Embedding.Provider {
	case embedder.ProviderJina, embedder.ProviderOpenAI, embedder.ProviderLocal:
	default:
		return fmt.Errorf("embedding.provider %q is not supported", c.Embedding.Provider)
	}
	if c.Embedding.Dimension < 0 {
		return errors.New("embedding.dimension must be >= 0")
	}

	if _, err := chunker.New(c.Chunking.MaxTokens, c.Chunking.OverlapTokens); err != nil {
		return fmt.Errorf("chunking: %w", err)
	}

	if err := c.Ranking.Fusion().Validate(); err != nil {
		return fmt.Errorf("ranking: %w", err)
	}
	if c.Ranking.TopChunksPerQuery <= 0 {
		return errors.New("ranking.top_chunks_per_query must be > 0")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}
