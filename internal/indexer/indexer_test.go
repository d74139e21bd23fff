package indexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dshills/jobsearch-mcp/internal/embedder"
	"github.com/dshills/jobsearch-mcp/internal/storage"
	"github.com/dshills/jobsearch-mcp/pkg/types"
)

// poisonEmbedder fails any batch that mentions "poison".
type poisonEmbedder struct {
	*embedder.LocalProvider
	calls atomic.Int32
}

func (p *poisonEmbedder) EmbedMany(ctx context.Context, texts []string, mode embedder.Mode) ([][]float32, error) {
	p.calls.Add(1)
	for _, t := range texts {
		if strings.Contains(t, "poison") {
			return nil, embedder.ErrProviderFailed
		}
	}
	return p.LocalProvider.EmbedMany(ctx, texts, mode)
}

func setupTestStorage(t testing.TB) *storage.SQLiteStorage {
	s, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func setupTestIndexer(t *testing.T, store Store, emb embedder.Embedder) *Indexer {
	idx, err := New(store, emb, &Config{PoolSize: 2, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	t.Cleanup(idx.Close)
	return idx
}

func testJobs() []*types.JobPosting {
	return []*types.JobPosting{
		{
			ID:    "job-1",
			Title: "Backend Engineer (Python)",
			Tasks: types.Section{Text: "<ul><li>Build APIs.</li><li>Run services in production.</li></ul>"},
			Types: []string{"Vollzeit"},
		},
		{
			ID:      "job-2",
			Title:   "Sales Associate",
			Summary: "Sell things on-site.",
			Offer:   types.Section{Text: "Team events | free coffee"},
		},
	}
}

func TestNew(t *testing.T) {
	_, err := New(nil, embedder.NewLocalProvider(8), nil)
	assert.Error(t, err)

	idx, err := New(setupTestStorage(t), embedder.NewLocalProvider(8), nil)
	require.NoError(t, err)
	defer idx.Close()
	assert.NotNil(t, idx.chunker)
	assert.NotNil(t, idx.pool)
	assert.Greater(t, idx.pool.Cap(), 0)
}

func TestIngestJobs_Success(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	idx := setupTestIndexer(t, store, embedder.NewLocalProvider(16))

	stats, err := idx.IngestJobs(ctx, testJobs())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.JobsInserted)
	assert.Zero(t, stats.JobsSkipped)
	assert.Zero(t, stats.JobsFailed)
	assert.Empty(t, stats.ErrorMessages)
	// title+tasks for job-1, title+summary+offer for job-2
	assert.Equal(t, 5, stats.ChunksCreated)

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Jobs)
	assert.Equal(t, 5, st.Chunks)
	assert.Equal(t, 5, st.EmbeddedChunks)

	hits, err := store.LexicalSearch(ctx, "APIs", nil, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "job-1", hits[0].JobID)
	assert.Equal(t, types.FieldTasks, hits[0].FieldType)
	assert.NotContains(t, hits[0].Content, "<li>")
}

func TestIngestJobs_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	emb := &poisonEmbedder{LocalProvider: embedder.NewLocalProvider(16)}
	idx := setupTestIndexer(t, store, emb)

	_, err := idx.IngestJobs(ctx, testJobs())
	require.NoError(t, err)
	calls := emb.calls.Load()

	stats, err := idx.IngestJobs(ctx, testJobs())
	require.NoError(t, err)
	assert.Zero(t, stats.JobsInserted)
	assert.Equal(t, 2, stats.JobsSkipped)
	assert.Zero(t, stats.ChunksCreated)
	assert.Equal(t, calls, emb.calls.Load(), "skipped jobs must not be embedded")

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, st.Chunks)
}

func TestIngestJobs_EmbeddingFailureRemovesJob(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	idx := setupTestIndexer(t, store, &poisonEmbedder{LocalProvider: embedder.NewLocalProvider(16)})

	jobs := testJobs()
	jobs = append(jobs, &types.JobPosting{
		ID:    "job-3",
		Title: "Chemist",
		Tasks: types.Section{Text: "Handle poison safely."},
	})

	stats, err := idx.IngestJobs(ctx, jobs)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.JobsInserted)
	assert.Equal(t, 1, stats.JobsFailed)
	require.Len(t, stats.ErrorMessages, 1)
	assert.Contains(t, stats.ErrorMessages[0], "job-3")

	_, err = store.GetJob(ctx, "job-3")
	assert.ErrorIs(t, err, types.ErrNotFound)

	hits, err := store.LexicalSearch(ctx, "Chemist", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIngestJobs_InvalidJob(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	idx := setupTestIndexer(t, store, embedder.NewLocalProvider(16))

	stats, err := idx.IngestJobs(ctx, []*types.JobPosting{
		{ID: "no-title"},
		nil,
		{ID: "ok", Title: "Data Scientist"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.JobsInserted)
	assert.Equal(t, 1, stats.JobsFailed)

	_, err = store.GetJob(ctx, "no-title")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestIngestJobs_InProgress(t *testing.T) {
	idx := setupTestIndexer(t, setupTestStorage(t), embedder.NewLocalProvider(16))

	require.True(t, idx.lock.TryAcquire())
	_, err := idx.IngestJobs(context.Background(), testJobs())
	assert.ErrorIs(t, err, ErrIngestInProgress)

	idx.lock.Release()
	stats, err := idx.IngestJobs(context.Background(), testJobs())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.JobsInserted)
}

func TestIngestJobs_Cancelled(t *testing.T) {
	store := setupTestStorage(t)
	idx := setupTestIndexer(t, store, embedder.NewLocalProvider(16))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := idx.IngestJobs(ctx, testJobs())
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, stats)
	assert.Zero(t, stats.JobsInserted)

	st, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.Jobs)
}

func TestParseDocument(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantIDs []string
		wantErr bool
	}{
		{
			name:    "object",
			doc:     `{"jobs": [{"id": "a", "title": "Dev", "types": ["Werkstudent"], "working_hours_min": 20, "working_hours_max": 40}]}`,
			wantIDs: []string{"a"},
		},
		{
			name:    "bare array",
			doc:     ` [{"id": "a", "title": "Dev"}, {"id": "b", "title": "Ops", "published_at": "2024-05-01T10:00:00Z"}]`,
			wantIDs: []string{"a", "b"},
		},
		{name: "empty list", doc: `{"jobs": []}`, wantIDs: []string{}},
		{name: "missing title", doc: `{"jobs": [{"id": "a"}]}`, wantErr: true},
		{name: "negative hours", doc: `{"jobs": [{"id": "a", "title": "Dev", "working_hours_min": -1}]}`, wantErr: true},
		{name: "tags not strings", doc: `{"jobs": [{"id": "a", "title": "Dev", "types": [1]}]}`, wantErr: true},
		{name: "missing jobs", doc: `{}`, wantErr: true},
		{name: "malformed", doc: `{"jobs": [`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, err := ParseDocument([]byte(tt.doc))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, types.ErrValidation)
				return
			}
			require.NoError(t, err)
			ids := make([]string, 0, len(jobs))
			for _, j := range jobs {
				ids = append(ids, j.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestParseDocument_Fields(t *testing.T) {
	jobs, err := ParseDocument([]byte(`{"jobs": [{
		"id": "a",
		"title": "Dev",
		"tasks": {"title": "Aufgaben", "text": "Code."},
		"homeoffice": ["Teilweise"],
		"published_at": "2024-05-01T10:00:00Z"
	}]}`))
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Code.", jobs[0].Tasks.Text)
	assert.Equal(t, []string{"Teilweise"}, jobs[0].Homeoffice)
	assert.Equal(t, 2024, jobs[0].PublishedAt.Year())
}

func TestIngestFile(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	idx := setupTestIndexer(t, store, embedder.NewLocalProvider(16))

	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"jobs": [{"id": "a", "title": "Data Engineer", "summary": "Spark and SQL."}]}`), 0o600))

	stats, err := idx.IngestFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.JobsInserted)
	assert.Equal(t, 2, stats.ChunksCreated)

	_, err = idx.IngestFile(ctx, filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"jobs": [{"title": "x"}]}`), 0o600))
	_, err = idx.IngestFile(ctx, bad)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestIngestLock(t *testing.T) {
	var l ingestLock
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
	l.Release()
	assert.True(t, l.TryAcquire())
}
