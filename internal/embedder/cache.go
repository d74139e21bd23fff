package embedder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dshills/jobsearch-mcp/internal/metrics"
	"github.com/dshills/jobsearch-mcp/internal/vector"
)

// SharedCache is a vector cache tier shared between processes.
type SharedCache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
}

// RedisCache stores vectors in Redis as little-endian float32 blobs.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed SharedCache. A ttl of 0 keeps entries
// until Redis evicts them.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "jobsearch:emb:"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	blob, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	vec, err := vector.Decode(blob)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, vec []float32) error {
	if err := r.client.Set(ctx, r.prefix+key, vector.Encode(vec), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// CachedEmbedder serves repeated texts from a local LRU and an optional
// shared tier before calling the wrapped provider. Shared-tier errors are
// logged and otherwise ignored.
type CachedEmbedder struct {
	inner  Embedder
	local  *Cache
	shared SharedCache
	logger *zap.Logger
}

// NewCached wraps inner. local and shared may each be nil.
func NewCached(inner Embedder, local *Cache, shared SharedCache, logger *zap.Logger) *CachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		inner:  inner,
		local:  local,
		shared: shared,
		logger: logger.With(zap.String("component", "embedder"), zap.String("provider", inner.Provider())),
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string, mode Mode) ([]float32, error) {
	if err := validateText(text, mode); err != nil {
		return nil, err
	}

	key := CacheKey(c.inner.Model(), mode, text)
	if vec, ok := c.lookup(ctx, key); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text, mode)
	c.observe(err)
	if err != nil {
		return nil, err
	}

	c.store(ctx, key, vec)
	return vec, nil
}

func (c *CachedEmbedder) EmbedMany(ctx context.Context, texts []string, mode Mode) ([][]float32, error) {
	if err := validateBatch(texts, mode); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missing []int

	for i, text := range texts {
		keys[i] = CacheKey(c.inner.Model(), mode, text)
		if vec, ok := c.lookup(ctx, keys[i]); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, i)
	}

	if len(missing) == 0 {
		return out, nil
	}

	pending := make([]string, len(missing))
	for j, i := range missing {
		pending[j] = texts[i]
	}

	vectors, err := c.inner.EmbedMany(ctx, pending, mode)
	c.observe(err)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(pending) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrProviderFailed, len(pending), len(vectors))
	}

	for j, i := range missing {
		out[i] = vectors[j]
		c.store(ctx, keys[i], vectors[j])
	}
	return out, nil
}

func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	if c.local != nil {
		if vec, ok := c.local.Get(key); ok {
			return vec, true
		}
	}
	if c.shared == nil {
		return nil, false
	}

	vec, ok, err := c.shared.Get(ctx, key)
	if err != nil {
		c.logger.Warn("shared cache lookup failed", zap.Error(err))
		return nil, false
	}
	if ok && c.local != nil {
		c.local.Set(key, vec)
	}
	return vec, ok
}

func (c *CachedEmbedder) store(ctx context.Context, key string, vec []float32) {
	if c.local != nil {
		c.local.Set(key, vec)
	}
	if c.shared != nil {
		if err := c.shared.Set(ctx, key, vec); err != nil {
			c.logger.Warn("shared cache store failed", zap.Error(err))
		}
	}
}

func (c *CachedEmbedder) observe(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.EmbeddingRequests.WithLabelValues(c.inner.Provider(), outcome).Inc()
}

func (c *CachedEmbedder) Dimension() int {
	return c.inner.Dimension()
}

func (c *CachedEmbedder) Provider() string {
	return c.inner.Provider()
}

func (c *CachedEmbedder) Model() string {
	return c.inner.Model()
}

func (c *CachedEmbedder) Close() error {
	return c.inner.Close()
}
