package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/jobsearch-mcp/internal/chunker"
	"github.com/dshills/jobsearch-mcp/internal/vector"
	"github.com/dshills/jobsearch-mcp/pkg/types"
)

// searchVectorOptimized uses the sqlite-vec extension to rank chunks in SQL
func searchVectorOptimized(ctx context.Context, db *sql.DB, queryVector []float32, jobIDs []string, limit int) ([]types.ChunkHit, error) {
	// vec_distance_cosine returns a distance; 1 - distance is the similarity
	query := `
		SELECT c.id, c.job_id, c.field_type, c.chunk_index, c.content,
		       1.0 - vec_distance_cosine(c.embedding, ?) AS score
		FROM job_chunks c
		WHERE c.embedding IS NOT NULL
	`
	args := []interface{}{vector.Encode(queryVector)}
	query, args, err := applyJobAllowlist(query, args, jobIDs)
	if err != nil {
		return nil, err
	}

	query += " ORDER BY score DESC, c.id ASC LIMIT ?"
	args = append(args, sqlLimit(limit))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectHits(rows, types.ChannelSemantic, nil)
}

// searchVectorFallback computes cosine similarity in Go for builds without
// the vector extension
func searchVectorFallback(ctx context.Context, db *sql.DB, queryVector []float32, jobIDs []string, limit int) ([]types.ChunkHit, error) {
	query := `
		SELECT c.id, c.job_id, c.field_type, c.chunk_index, c.content, c.embedding
		FROM job_chunks c
		WHERE c.embedding IS NOT NULL
	`
	query, args, err := applyJobAllowlist(query, nil, jobIDs)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]types.ChunkHit, 0, 256)
	for rows.Next() {
		var (
			hit   types.ChunkHit
			field string
			blob  []byte
		)
		if err := rows.Scan(&hit.ChunkID, &hit.JobID, &field, &hit.ChunkIndex, &hit.Content, &blob); err != nil {
			return nil, err
		}
		v, err := vector.Decode(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", hit.ChunkID, err)
		}
		if len(v) != len(queryVector) {
			continue // dimension mismatch
		}
		hit.FieldType = types.FieldType(field)
		hit.Score = vector.Cosine(queryVector, v)
		hit.Channel = types.ChannelSemantic
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortHits(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// searchText runs an FTS5 query built by FTSQuery. limit <= 0 means no limit.
func searchText(ctx context.Context, db *sql.DB, match string, jobIDs []string, limit int) ([]types.ChunkHit, error) {
	// bm25() is negative with lower meaning better; negate it so higher is better
	query := `
		SELECT c.id, c.job_id, c.field_type, c.chunk_index, c.content,
		       -bm25(job_chunks_fts) AS score
		FROM job_chunks_fts
		INNER JOIN job_chunks c ON c.id = job_chunks_fts.rowid
		WHERE job_chunks_fts MATCH ?
	`
	args := []interface{}{match}
	query, args, err := applyJobAllowlist(query, args, jobIDs)
	if err != nil {
		return nil, err
	}

	query += " ORDER BY score DESC, c.id ASC LIMIT ?"
	args = append(args, sqlLimit(limit))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectHits(rows, types.ChannelLexical, LexicalScore)
}

// LexicalScore maps a negated bm25 value into (0,1), preserving order.
func LexicalScore(s float64) float64 {
	if s <= 0 {
		return 0
	}
	return s / (1 + s)
}

// FTSQuery turns free text into an FTS5 expression matching any of its
// terms. Every term is quoted, so operators and punctuation in the input
// are never interpreted. Returns "" when the text has no terms.
func FTSQuery(text string) string {
	terms := chunker.Terms(text)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}

// applyJobAllowlist restricts a chunk query aliased c to jobIDs. The ids
// travel as one JSON array argument, so the allowlist size is not bounded
// by SQLite's host parameter limit.
func applyJobAllowlist(query string, args []interface{}, jobIDs []string) (string, []interface{}, error) {
	if len(jobIDs) == 0 {
		return query, args, nil
	}
	ids, err := json.Marshal(jobIDs)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode job allowlist: %w", err)
	}
	args = append(args, string(ids))
	return query + " AND c.job_id IN (SELECT value FROM json_each(?))", args, nil
}

func collectHits(rows *sql.Rows, channel types.Channel, mapScore func(float64) float64) ([]types.ChunkHit, error) {
	hits := make([]types.ChunkHit, 0)
	for rows.Next() {
		var (
			hit   types.ChunkHit
			field string
		)
		if err := rows.Scan(&hit.ChunkID, &hit.JobID, &field, &hit.ChunkIndex, &hit.Content, &hit.Score); err != nil {
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		hit.FieldType = types.FieldType(field)
		hit.Channel = channel
		if mapScore != nil {
			hit.Score = mapScore(hit.Score)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// sortHits orders hits by score descending, then chunk id ascending
func sortHits(hits []types.ChunkHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
}

// sqlLimit converts a non-positive limit to SQLite's "no limit"
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
