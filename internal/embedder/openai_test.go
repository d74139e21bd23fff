package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAIServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]interface{}, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]interface{}{
				"object":    "embedding",
				"embedding": []float32{float32(i + 1), 0.5},
				"index":     i,
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOpenAIProvider(t *testing.T) {
	var calls atomic.Int32
	server := openAIServer(t, &calls)

	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: server.URL, Model: "test-embed", Dimension: 2, Retry: fastRetry()})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	assert.Equal(t, ProviderOpenAI, p.Provider())
	assert.Equal(t, "test-embed", p.Model())
	assert.Equal(t, 2, p.Dimension())

	ctx := context.Background()

	vec, err := p.Embed(ctx, "backend engineer", ModeQuery)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0.5}, vec)

	vectors, err := p.EmbedMany(ctx, []string{"first", "second"}, ModeDocument)
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, float32(2), vectors[1][0])
}

func TestOpenAIProvider_MissingKey(t *testing.T) {
	t.Setenv(EnvOpenAIAPIKey, "")
	_, err := NewOpenAIProvider(OpenAIConfig{})
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}
