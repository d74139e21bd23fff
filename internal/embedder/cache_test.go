package embedder

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// countingEmbedder records how many texts reach the provider.
type countingEmbedder struct {
	*LocalProvider
	texts atomic.Int32
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string, mode Mode) ([]float32, error) {
	c.texts.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.LocalProvider.Embed(ctx, text, mode)
}

func (c *countingEmbedder) EmbedMany(ctx context.Context, texts []string, mode Mode) ([][]float32, error) {
	c.texts.Add(int32(len(texts)))
	if c.err != nil {
		return nil, c.err
	}
	return c.LocalProvider.EmbedMany(ctx, texts, mode)
}

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, "", time.Hour), mr
}

func TestCachedEmbedder_LocalTier(t *testing.T) {
	inner := &countingEmbedder{LocalProvider: NewLocalProvider(16)}
	c := NewCached(inner, NewCache(100), nil, zaptest.NewLogger(t))
	ctx := context.Background()

	first, err := c.Embed(ctx, "golang", ModeQuery)
	require.NoError(t, err)
	second, err := c.Embed(ctx, "golang", ModeQuery)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), inner.texts.Load())

	// Same text in document mode is a different cache entry.
	_, err = c.Embed(ctx, "golang", ModeDocument)
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.texts.Load())
}

func TestCachedEmbedder_EmbedManyOnlyMisses(t *testing.T) {
	inner := &countingEmbedder{LocalProvider: NewLocalProvider(16)}
	c := NewCached(inner, NewCache(100), nil, nil)
	ctx := context.Background()

	_, err := c.Embed(ctx, "b", ModeDocument)
	require.NoError(t, err)

	vectors, err := c.EmbedMany(ctx, []string{"a", "b", "c"}, ModeDocument)
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for _, v := range vectors {
		assert.Len(t, v, 16)
	}
	// one call for "b", then two misses
	assert.Equal(t, int32(3), inner.texts.Load())

	direct, err := inner.LocalProvider.Embed(ctx, "c", ModeDocument)
	require.NoError(t, err)
	assert.Equal(t, direct, vectors[2])
}

func TestCachedEmbedder_SharedTier(t *testing.T) {
	shared, mr := newRedisCache(t)
	ctx := context.Background()

	inner := &countingEmbedder{LocalProvider: NewLocalProvider(8)}
	first := NewCached(inner, NewCache(10), shared, zaptest.NewLogger(t))
	vec, err := first.Embed(ctx, "warehouse", ModeQuery)
	require.NoError(t, err)
	assert.Len(t, mr.Keys(), 1)

	// A second process with an empty local cache hits Redis.
	other := &countingEmbedder{LocalProvider: NewLocalProvider(8)}
	second := NewCached(other, NewCache(10), shared, zaptest.NewLogger(t))
	got, err := second.Embed(ctx, "warehouse", ModeQuery)
	require.NoError(t, err)
	assert.Equal(t, vec, got)
	assert.Equal(t, int32(0), other.texts.Load())
}

func TestCachedEmbedder_SharedTierDown(t *testing.T) {
	shared, mr := newRedisCache(t)
	mr.Close()

	inner := &countingEmbedder{LocalProvider: NewLocalProvider(8)}
	c := NewCached(inner, nil, shared, zaptest.NewLogger(t))

	vec, err := c.Embed(context.Background(), "text", ModeQuery)
	require.NoError(t, err)
	assert.Len(t, vec, 8)
}

func TestCachedEmbedder_ProviderError(t *testing.T) {
	inner := &countingEmbedder{LocalProvider: NewLocalProvider(8), err: ErrProviderFailed}
	c := NewCached(inner, NewCache(10), nil, nil)

	_, err := c.Embed(context.Background(), "text", ModeQuery)
	assert.ErrorIs(t, err, ErrProviderFailed)

	_, err = c.EmbedMany(context.Background(), []string{"x"}, ModeDocument)
	assert.True(t, errors.Is(err, ErrProviderFailed))
}

func TestRedisCache_Miss(t *testing.T) {
	shared, _ := newRedisCache(t)

	vec, ok, err := shared.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, vec)
}
