package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/jobsearch-mcp/internal/filter"
	"github.com/dshills/jobsearch-mcp/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func testJob(id string, hoursMin, hoursMax int, jobTypes ...string) *types.JobPosting {
	return &types.JobPosting{
		ID:              id,
		Title:           "Job " + id,
		Company:         "ACME",
		Location:        "Berlin",
		WorkingHoursMin: hoursMin,
		WorkingHoursMax: hoursMax,
		Types:           jobTypes,
	}
}

func insertJob(t *testing.T, s *SQLiteStorage, job *types.JobPosting) {
	t.Helper()
	inserted, err := s.InsertJob(context.Background(), job)
	require.NoError(t, err)
	require.True(t, inserted)
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	assert.NotNil(t, storage.db)
	if !VectorExtensionAvailable {
		assert.False(t, storage.vecNative)
	}
}

func TestInsertJob_Idempotent(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	job := testJob("a", 20, 40)
	inserted, err := s.InsertJob(ctx, job)
	require.NoError(t, err)
	assert.True(t, inserted)

	job.Title = "Changed"
	inserted, err = s.InsertJob(ctx, job)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := s.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Job a", got.Title, "existing job is left untouched")
}

func TestInsertJob_Invalid(t *testing.T) {
	s := setupTestDB(t)

	_, err := s.InsertJob(context.Background(), &types.JobPosting{Title: "no id"})
	assert.True(t, errors.Is(err, types.ErrValidation))

	_, err = s.InsertJob(context.Background(), nil)
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestGetJob_RoundTrip(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	published := time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC)
	job := &types.JobPosting{
		ID:              "full",
		Title:           "Werkstudent Data Engineering",
		Summary:         "Build pipelines",
		Company:         "ACME",
		Location:        "Köln",
		Country:         "DE",
		DisplayText:     "ACME sucht",
		PublishedAt:     published,
		Intro:           types.Section{Title: "Über uns", Text: "<p>Wir sind ACME.</p>"},
		Tasks:           types.Section{Title: "Aufgaben", Text: "Python und SQL"},
		Expectations:    types.Section{Text: "Studium"},
		Offer:           types.Section{Text: "Flexible Zeiten"},
		Contact:         types.Section{Text: "jobs@acme.test"},
		WorkingHoursMin: 15,
		WorkingHoursMax: 20,
		Types:           []string{"Werkstudent"},
		Fields:          []string{"IT"},
		Domains:         []string{"Informatik", "Mathematik"},
		Homeoffice:      []string{"teilweise"},
	}
	insertJob(t, s, job)

	got, err := s.GetJob(ctx, "full")
	require.NoError(t, err)
	assert.Equal(t, job, got)
}

func TestGetJob_NotFound(t *testing.T) {
	s := setupTestDB(t)

	_, err := s.GetJob(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestInsertChunks_Integrity(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	insertJob(t, s, testJob("a", 0, 0))

	t.Run("unknown job", func(t *testing.T) {
		err := s.InsertChunks(ctx, "ghost", types.FieldTasks, []string{"x"}, [][]float32{{1}})
		assert.True(t, errors.Is(err, types.ErrIntegrity))
	})

	t.Run("length mismatch", func(t *testing.T) {
		err := s.InsertChunks(ctx, "a", types.FieldTasks, []string{"x", "y"}, [][]float32{{1}})
		assert.True(t, errors.Is(err, types.ErrIntegrity))
	})

	t.Run("unknown field", func(t *testing.T) {
		err := s.InsertChunks(ctx, "a", types.FieldType("salary"), []string{"x"}, [][]float32{{1}})
		assert.True(t, errors.Is(err, types.ErrValidation))
	})

	t.Run("empty content", func(t *testing.T) {
		err := s.InsertChunks(ctx, "a", types.FieldTasks, []string{" "}, [][]float32{{1}})
		assert.True(t, errors.Is(err, types.ErrValidation))
	})

	t.Run("duplicate key", func(t *testing.T) {
		require.NoError(t, s.InsertChunks(ctx, "a", types.FieldOffer, []string{"x"}, [][]float32{{1}}))
		err := s.InsertChunks(ctx, "a", types.FieldOffer, []string{"y"}, [][]float32{{1}})
		assert.True(t, errors.Is(err, types.ErrIntegrity))
	})

	t.Run("rolled back as a unit", func(t *testing.T) {
		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Chunks)
	})
}

func TestDeleteJob_Cascades(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	insertJob(t, s, testJob("a", 0, 0))
	insertJob(t, s, testJob("b", 0, 0))
	require.NoError(t, s.InsertChunks(ctx, "a", types.FieldTasks,
		[]string{"python pipelines", "cloud python"}, [][]float32{{1, 0}, {0, 1}}))
	require.NoError(t, s.InsertChunks(ctx, "b", types.FieldTasks,
		[]string{"python reporting"}, [][]float32{{1, 0}}))

	require.NoError(t, s.DeleteJob(ctx, "a"))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Jobs)
	assert.Equal(t, 1, stats.Chunks)

	hits, err := s.LexicalSearch(ctx, "python", nil, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].JobID)

	err = s.DeleteJob(ctx, "a")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestSemanticSearch(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	insertJob(t, s, testJob("a", 0, 0))
	insertJob(t, s, testJob("b", 0, 0))
	require.NoError(t, s.InsertChunks(ctx, "a", types.FieldTitle,
		[]string{"exact", "diagonal"}, [][]float32{{1, 0}, {0.7, 0.7}}))
	require.NoError(t, s.InsertChunks(ctx, "b", types.FieldTitle,
		[]string{"orthogonal", "exact twin", "wrong dimension"}, [][]float32{{0, 1}, {1, 0}, {1, 0, 0}}))

	hits, err := s.SemanticSearch(ctx, []float32{1, 0}, nil, 10)
	require.NoError(t, err)
	require.Len(t, hits, 4)

	assert.Equal(t, "exact", hits[0].Content)
	assert.Equal(t, "exact twin", hits[1].Content, "ties resolve by chunk id")
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.InDelta(t, 1.0, hits[1].Score, 1e-6)
	assert.Equal(t, "diagonal", hits[2].Content)
	assert.Equal(t, "orthogonal", hits[3].Content)
	assert.Less(t, hits[0].ChunkID, hits[1].ChunkID)
	for _, h := range hits {
		assert.Equal(t, types.ChannelSemantic, h.Channel)
		assert.Equal(t, types.FieldTitle, h.FieldType)
	}

	hits, err = s.SemanticSearch(ctx, []float32{1, 0}, []string{"b"}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "b", hits[0].JobID)

	hits, err = s.SemanticSearch(ctx, []float32{1, 0}, nil, 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	_, err = s.SemanticSearch(ctx, nil, nil, 10)
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestLexicalSearch(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	insertJob(t, s, testJob("a", 0, 0))
	insertJob(t, s, testJob("b", 0, 0))
	insertJob(t, s, testJob("c", 0, 0))
	require.NoError(t, s.InsertChunks(ctx, "a", types.FieldTasks,
		[]string{"python python developer"}, [][]float32{{1}}))
	require.NoError(t, s.InsertChunks(ctx, "b", types.FieldTasks,
		[]string{"java developer who also knows some python"}, [][]float32{{1}}))
	require.NoError(t, s.InsertChunks(ctx, "c", types.FieldTasks,
		[]string{"accounting and controlling"}, [][]float32{{1}}))

	hits, err := s.LexicalSearch(ctx, "Python", nil, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].JobID)
	assert.Equal(t, "b", hits[1].JobID)
	for _, h := range hits {
		assert.Greater(t, h.Score, 0.0)
		assert.Less(t, h.Score, 1.0)
		assert.Equal(t, types.ChannelLexical, h.Channel)
	}

	t.Run("any term matches", func(t *testing.T) {
		hits, err := s.LexicalSearch(ctx, "controlling kotlin", nil, 10)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "c", hits[0].JobID)
	})

	t.Run("operators are not interpreted", func(t *testing.T) {
		hits, err := s.LexicalSearch(ctx, `python -(NOT "java* NEAR:`, nil, 10)
		require.NoError(t, err)
		assert.Len(t, hits, 2)
	})

	t.Run("allowlist", func(t *testing.T) {
		hits, err := s.LexicalSearch(ctx, "python", []string{"b", "c"}, 10)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "b", hits[0].JobID)
	})

	t.Run("allowlist beyond host parameter limit", func(t *testing.T) {
		ids := make([]string, 40000)
		for i := range ids {
			ids[i] = fmt.Sprintf("missing-%d", i)
		}
		ids[len(ids)-1] = "a"

		hits, err := s.LexicalSearch(ctx, "python", ids, 10)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "a", hits[0].JobID)

		sem, err := s.SemanticSearch(ctx, []float32{1}, ids, 10)
		require.NoError(t, err)
		require.Len(t, sem, 1)
		assert.Equal(t, "a", sem[0].JobID)
	})

	t.Run("no terms", func(t *testing.T) {
		hits, err := s.LexicalSearch(ctx, "?!", nil, 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestSelectJobs(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	older := testJob("a", 30, 50, "Praktikum", "Ausbildung")
	older.PublishedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := testJob("b", 45, 60, "Ausbildung")
	newer.PublishedAt = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	undated := testJob("c", 10, 25, "Werkstudent")
	insertJob(t, s, older)
	insertJob(t, s, newer)
	insertJob(t, s, undated)

	ids := func(matches []types.JobMatch) []string {
		out := make([]string, len(matches))
		for i, m := range matches {
			out[i] = m.Job.ID
		}
		return out
	}

	tests := []struct {
		name   string
		filter types.Filter
		limit  int
		want   []string
	}{
		{"empty filter orders by publish date", types.Filter{}, 0, []string{"b", "a", "c"}},
		{"limit", types.Filter{}, 2, []string{"b", "a"}},
		{"hours overlap", types.Filter{WorkingHours: &[2]int{20, 40}}, 0, []string{"a", "c"}},
		{"hours from", types.Filter{WorkingHours: types.HoursFrom(55)}, 0, []string{"b"}},
		{"tag overlap", types.Filter{Types: []string{"Werkstudent", "Praktikum"}}, 0, []string{"a", "c"}},
		{"conjunction", types.Filter{Types: []string{"Ausbildung"}, WorkingHours: &[2]int{20, 40}}, 0, []string{"a"}},
		{"allowlist", types.Filter{JobIDs: []string{"c", "b"}}, 0, []string{"b", "c"}},
		{"no match", types.Filter{Types: []string{"Festanstellung"}}, 0, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := filter.Build(tt.filter)
			require.NoError(t, err)
			matches, err := s.SelectJobs(ctx, pred, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(matches))
		})
	}
}

func TestSelectJobs_Search(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	insertJob(t, s, testJob("a", 0, 0, "Praktikum"))
	insertJob(t, s, testJob("b", 0, 0, "Praktikum"))
	insertJob(t, s, testJob("c", 0, 0, "Werkstudent"))
	require.NoError(t, s.InsertChunks(ctx, "a", types.FieldTasks,
		[]string{"java developer who also knows some python"}, [][]float32{{1}}))
	require.NoError(t, s.InsertChunks(ctx, "b", types.FieldTasks,
		[]string{"python python developer"}, [][]float32{{1}}))
	require.NoError(t, s.InsertChunks(ctx, "c", types.FieldTasks,
		[]string{"python analytics"}, [][]float32{{1}}))

	pred, err := filter.Build(types.Filter{Search: "python", Types: []string{"Praktikum"}})
	require.NoError(t, err)
	matches, err := s.SelectJobs(ctx, pred, 0)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "b", matches[0].Job.ID)
	assert.Equal(t, "a", matches[1].Job.ID)
	assert.Greater(t, matches[0].Relevance, matches[1].Relevance)

	pred, err = filter.Build(types.Filter{Search: "kotlin"})
	require.NoError(t, err)
	matches, err = s.SelectJobs(ctx, pred, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)

	pred, err = filter.Build(types.Filter{Search: "python"})
	require.NoError(t, err)
	matches, err = s.SelectJobs(ctx, pred, 1)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestStats(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	job := testJob("a", 0, 0)
	job.PublishedAt = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	insertJob(t, s, job)
	require.NoError(t, s.InsertChunks(ctx, "a", types.FieldTitle, []string{"t"}, [][]float32{{1}}))
	require.NoError(t, s.InsertChunks(ctx, "a", types.FieldTasks, []string{"x", "y"}, [][]float32{{1}, nil}))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Jobs)
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 2, stats.EmbeddedChunks)
	assert.Equal(t, map[types.FieldType]int{types.FieldTitle: 1, types.FieldTasks: 2}, stats.ChunksByField)
	assert.Equal(t, CurrentSchemaVersion, stats.SchemaVersion)
	assert.Equal(t, job.PublishedAt, stats.LastPublishedAt)
	assert.True(t, stats.Health.DatabaseAccessible)
	assert.True(t, stats.Health.EmbeddingsAvailable)
	assert.Equal(t, "sqlite/"+BuildMode, stats.Backend)
}
