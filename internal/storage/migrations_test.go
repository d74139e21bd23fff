package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMigrations_Idempotent(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, ApplyMigrations(ctx, s.db))

	var n int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&n))
	assert.Equal(t, len(AllMigrations), n)

	v, err := SchemaVersion(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())
}

func TestRollbackMigration(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, RollbackMigration(ctx, s.db))
	v, err := SchemaVersion(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v.String())

	var name string
	err = s.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_jobs_published'").Scan(&name)
	assert.Error(t, err, "index dropped by rollback")

	require.NoError(t, ApplyMigrations(ctx, s.db))
	v, err = SchemaVersion(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())

	require.NoError(t, RollbackMigration(ctx, s.db))
	require.NoError(t, RollbackMigration(ctx, s.db))
	v, err = SchemaVersion(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0", v.String())
	assert.Error(t, RollbackMigration(ctx, s.db))
}

func TestFTSQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"?!", ""},
		{"Python", `"python"`},
		{`data AND "science"`, `"data" OR "and" OR "science"`},
		{"python python", `"python"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FTSQuery(tt.in), tt.in)
	}
}

func TestLexicalScore(t *testing.T) {
	assert.Equal(t, 0.0, LexicalScore(0))
	assert.Equal(t, 0.0, LexicalScore(-3))
	assert.InDelta(t, 0.5, LexicalScore(1), 1e-9)
	assert.Less(t, LexicalScore(2), LexicalScore(3))
	assert.Less(t, LexicalScore(1e6), 1.0)
}
