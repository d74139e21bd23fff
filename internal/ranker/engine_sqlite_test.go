package ranker

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/jobsearch-mcp/internal/embedder"
	"github.com/dshills/jobsearch-mcp/internal/retriever"
	"github.com/dshills/jobsearch-mcp/internal/storage"
	"github.com/dshills/jobsearch-mcp/pkg/types"
)

// fixedEmbedder embeds every query to the same unit vector.
type fixedEmbedder struct {
	embedder.Embedder
	vec []float32
}

func (f fixedEmbedder) Embed(context.Context, string, embedder.Mode) ([]float32, error) {
	return f.vec, nil
}

func (f fixedEmbedder) Provider() string { return "fixed" }

// unitAt returns a 2-d unit vector whose cosine with [1,0] is sim.
func unitAt(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func TestEngine_SQLite_JobAOverJobB(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	jobs := []struct {
		id      string
		content string
		vec     []float32
	}{
		{"job-a", "remote backend engineer python", unitAt(0.9)},
		{"job-b", "on-site sales associate", unitAt(0.1)},
	}
	for _, j := range jobs {
		inserted, err := store.InsertJob(ctx, &types.JobPosting{ID: j.id, Title: j.content})
		require.NoError(t, err)
		require.True(t, inserted)
		require.NoError(t, store.InsertChunks(ctx, j.id, types.FieldTitle, []string{j.content}, [][]float32{j.vec}))
	}

	lexical := retriever.NewLexical(store)
	semantic := retriever.NewSemantic(store, fixedEmbedder{vec: []float32{1, 0}})
	e := newTestEngine(t, lexical, semantic)

	ranked, err := e.Rank(ctx, "python developer remote", RankOptions{})
	require.NoError(t, err)
	require.Len(t, ranked, 2)

	assert.Equal(t, "job-a", ranked[0].JobID)
	assert.Equal(t, "job-b", ranked[1].JobID)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
	assert.Greater(t, ranked[0].LexicalScore, 0.0)
	assert.Zero(t, ranked[1].LexicalScore)
	assert.InDelta(t, 0.9, ranked[0].SemanticScore, 1e-4)
	assert.InDelta(t, 0.1, ranked[1].SemanticScore, 1e-4)

	t.Run("allowlist", func(t *testing.T) {
		ranked, err := e.Rank(ctx, "python developer remote", RankOptions{JobIDs: []string{"job-b"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"job-b"}, ids(ranked))
	})

	t.Run("similar", func(t *testing.T) {
		similar, err := e.Similar(ctx, "python developer remote", 5, 0.5)
		require.NoError(t, err)
		require.Len(t, similar, 1)
		assert.Equal(t, "job-a", similar[0].JobID)
	})
}
