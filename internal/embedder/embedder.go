package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/dshills/jobsearch-mcp/pkg/types"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrInvalidInput        = fmt.Errorf("%w: invalid embedding input", types.ErrValidation)
	ErrEmptyText           = fmt.Errorf("%w: text cannot be empty", types.ErrValidation)
	ErrBatchTooLarge       = fmt.Errorf("%w: batch size exceeds limit", types.ErrValidation)
	ErrProviderFailed      = fmt.Errorf("%w: embedding provider failed", types.ErrEmbeddingUnavailable)
	ErrUnsupportedProvider = errors.New("unsupported embedding provider")
	ErrNoProviderEnabled   = errors.New("no embedding provider configured")
)

// Mode distinguishes indexed content from search input.
type Mode string

const (
	ModeDocument Mode = "document"
	ModeQuery    Mode = "query"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeDocument || m == ModeQuery
}

// Embedder converts text to fixed-dimension vectors.
type Embedder interface {
	// Embed returns the vector for a single text
	Embed(ctx context.Context, text string, mode Mode) ([]float32, error)

	// EmbedMany returns one vector per text, in input order
	EmbedMany(ctx context.Context, texts []string, mode Mode) ([][]float32, error)

	// Dimension returns the vector width produced by this provider
	Dimension() int

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string

	// Close releases any resources held by the embedder
	Close() error
}

// Cache is an in-memory LRU of vectors keyed by CacheKey.
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates a new vector cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		cache, _ = lru.New[string, []float32](10000)
	}
	return &Cache{cache: cache}
}

// Get returns a copy of the cached vector so callers cannot mutate the entry.
func (c *Cache) Get(key string) ([]float32, bool) {
	vec, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

// Set stores a copy of vec
func (c *Cache) Set(key string, vec []float32) {
	c.cache.Add(key, append([]float32(nil), vec...))
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// CacheKey hashes mode, model and text into a cache key.
func CacheKey(model string, mode Mode, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(mode))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

func validateText(text string, mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, mode)
	}
	if text == "" {
		return ErrEmptyText
	}
	return nil
}

func validateBatch(texts []string, mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, mode)
	}
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}
	return nil
}
