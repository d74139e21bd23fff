package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("local without cache", func(t *testing.T) {
		emb, err := New(Config{Provider: ProviderLocal, Dimension: 32})
		require.NoError(t, err)
		assert.IsType(t, &LocalProvider{}, emb)
		assert.Equal(t, 32, emb.Dimension())
	})

	t.Run("cache wraps provider", func(t *testing.T) {
		emb, err := New(Config{Provider: "LOCAL", CacheSize: 10})
		require.NoError(t, err)
		assert.IsType(t, &CachedEmbedder{}, emb)
		assert.Equal(t, ProviderLocal, emb.Provider())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := New(Config{Provider: "word2vec"})
		assert.ErrorIs(t, err, ErrUnsupportedProvider)
	})

	t.Run("jina requires key", func(t *testing.T) {
		t.Setenv(EnvJinaAPIKey, "")
		_, err := New(Config{Provider: ProviderJina})
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})
}

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		jina     string
		openai   string
		want     string
	}{
		{"explicit", "OpenAI", "j", "", ProviderOpenAI},
		{"jina key", "", "j", "o", ProviderJina},
		{"openai key", "", "", "o", ProviderOpenAI},
		{"fallback", "", "", "", ProviderLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvProvider, tt.provider)
			t.Setenv(EnvJinaAPIKey, tt.jina)
			t.Setenv(EnvOpenAIAPIKey, tt.openai)
			assert.Equal(t, tt.want, DetectProvider())
		})
	}
}

func TestNewFromEnv_Local(t *testing.T) {
	t.Setenv(EnvProvider, "")
	t.Setenv(EnvJinaAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "")

	emb, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, emb.Provider())
}
