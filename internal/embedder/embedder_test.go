package embedder

import (
	"testing"

	"github.com/dshills/jobsearch-mcp/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetReturnsCopy(t *testing.T) {
	c := NewCache(10)
	c.Set("k", []float32{1, 2, 3})

	got, ok := c.Get("k")
	require.True(t, ok)
	got[0] = 99

	again, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, again)
}

func TestCache_SetStoresCopy(t *testing.T) {
	c := NewCache(10)
	vec := []float32{1, 2}
	c.Set("k", vec)
	vec[0] = 42

	got, _ := c.Get("k")
	assert.Equal(t, []float32{1, 2}, got)
}

func TestCache_Eviction(t *testing.T) {
	c := NewCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	c.Set("c", []float32{3})

	assert.Equal(t, 2, c.Size())
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestCacheKey(t *testing.T) {
	doc := CacheKey("m", ModeDocument, "backend engineer")
	query := CacheKey("m", ModeQuery, "backend engineer")
	other := CacheKey("other", ModeDocument, "backend engineer")

	assert.Len(t, doc, 64)
	assert.NotEqual(t, doc, query)
	assert.NotEqual(t, doc, other)
	assert.Equal(t, doc, CacheKey("m", ModeDocument, "backend engineer"))
}

func TestValidation(t *testing.T) {
	assert.ErrorIs(t, validateText("", ModeQuery), types.ErrValidation)
	assert.ErrorIs(t, validateText("x", Mode("bogus")), types.ErrValidation)
	assert.NoError(t, validateText("x", ModeDocument))

	assert.ErrorIs(t, validateBatch(nil, ModeDocument), types.ErrValidation)
	assert.ErrorIs(t, validateBatch([]string{"a", ""}, ModeDocument), types.ErrValidation)
	assert.NoError(t, validateBatch([]string{"a", "b"}, ModeQuery))
}

func TestErrorTaxonomy(t *testing.T) {
	assert.ErrorIs(t, ErrProviderFailed, types.ErrEmbeddingUnavailable)
	assert.ErrorIs(t, ErrEmptyText, types.ErrValidation)
	assert.NotErrorIs(t, ErrEmptyText, types.ErrEmbeddingUnavailable)
}
