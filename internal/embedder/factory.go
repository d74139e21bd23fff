package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config holds embedder configuration
type Config struct {
	Provider      string
	Model         string
	APIKey        string
	BaseURL       string
	Dimension     int
	CacheSize     int
	RatePerSecond float64
	Timeout       time.Duration
	Shared        SharedCache
	Logger        *zap.Logger
}

// New creates an embedder with explicit configuration. The provider is
// wrapped in a CachedEmbedder when CacheSize > 0 or a shared tier is set.
func New(cfg Config) (Embedder, error) {
	var provider Embedder

	switch strings.ToLower(cfg.Provider) {
	case ProviderJina:
		p, err := NewJinaProvider(JinaConfig{
			APIKey:        cfg.APIKey,
			Model:         cfg.Model,
			BaseURL:       cfg.BaseURL,
			Dimension:     cfg.Dimension,
			Timeout:       cfg.Timeout,
			RatePerSecond: cfg.RatePerSecond,
		})
		if err != nil {
			return nil, err
		}
		provider = p
	case ProviderOpenAI:
		p, err := NewOpenAIProvider(OpenAIConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			Dimension: cfg.Dimension,
		})
		if err != nil {
			return nil, err
		}
		provider = p
	case ProviderLocal, "":
		provider = NewLocalProvider(cfg.Dimension)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}

	if cfg.CacheSize <= 0 && cfg.Shared == nil {
		return provider, nil
	}

	var local *Cache
	if cfg.CacheSize > 0 {
		local = NewCache(cfg.CacheSize)
	}
	return NewCached(provider, local, cfg.Shared, cfg.Logger), nil
}

// NewFromEnv creates an embedder based on environment variables
// Priority:
// 1. JOBSEARCH_EMBEDDING_PROVIDER (jina, openai, local)
// 2. Check for API keys: JINA_API_KEY, OPENAI_API_KEY
// 3. Default to local if no API keys found
func NewFromEnv() (Embedder, error) {
	provider := DetectProvider()

	var key string
	switch provider {
	case ProviderJina:
		key = os.Getenv(EnvJinaAPIKey)
	case ProviderOpenAI:
		key = os.Getenv(EnvOpenAIAPIKey)
	}

	return New(Config{Provider: provider, APIKey: key, CacheSize: 10000})
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	if provider := os.Getenv(EnvProvider); provider != "" {
		return strings.ToLower(provider)
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}
