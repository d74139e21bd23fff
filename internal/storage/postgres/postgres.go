// Package postgres implements the chunk index on PostgreSQL with pgvector
// for semantic search and tsvector for lexical search.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/dshills/jobsearch-mcp/internal/chunker"
	"github.com/dshills/jobsearch-mcp/internal/filter"
	"github.com/dshills/jobsearch-mcp/internal/storage"
	"github.com/dshills/jobsearch-mcp/pkg/types"
)

// Config holds connection pool settings
type Config struct {
	DSN            string
	MaxConnections int
	MaxIdle        int
}

// Store implements storage.Storage on PostgreSQL
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL through lib/pq.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return New(db), nil
}

// New wraps an open handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ping tests the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS jobs (
    job_id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    company TEXT NOT NULL DEFAULT '',
    location TEXT NOT NULL DEFAULT '',
    country TEXT NOT NULL DEFAULT '',
    display_text TEXT NOT NULL DEFAULT '',
    sections JSONB NOT NULL DEFAULT '{}',
    working_hours_min INTEGER NOT NULL DEFAULT 0,
    working_hours_max INTEGER NOT NULL DEFAULT 0,
    types TEXT[] NOT NULL DEFAULT '{}',
    fields TEXT[] NOT NULL DEFAULT '{}',
    domains TEXT[] NOT NULL DEFAULT '{}',
    homeoffice TEXT[] NOT NULL DEFAULT '{}',
    published_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    CHECK (working_hours_min >= 0 AND working_hours_max >= working_hours_min)
);

CREATE INDEX IF NOT EXISTS idx_jobs_published ON jobs (published_at DESC NULLS LAST, job_id);
CREATE INDEX IF NOT EXISTS idx_jobs_types ON jobs USING GIN (types);

CREATE TABLE IF NOT EXISTS job_chunks (
    id BIGSERIAL PRIMARY KEY,
    job_id TEXT NOT NULL REFERENCES jobs(job_id) ON DELETE CASCADE,
    field_type TEXT NOT NULL CHECK (field_type IN ('title', 'summary', 'intro', 'tasks', 'expectations', 'offer', 'contact')),
    chunk_index INTEGER NOT NULL CHECK (chunk_index >= 0),
    content TEXT NOT NULL CHECK (length(content) > 0),
    embedding vector,
    tsv tsvector GENERATED ALWAYS AS (to_tsvector('simple', content)) STORED,
    UNIQUE (job_id, field_type, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_job_chunks_job ON job_chunks (job_id);
CREATE INDEX IF NOT EXISTS idx_job_chunks_tsv ON job_chunks USING GIN (tsv);
`

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply postgres schema: %w", err)
	}
	return nil
}

// integrityClass is the SQLSTATE class for constraint violations.
const integrityClass = "23"

func isConstraintError(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Class() == integrityClass
}

func (s *Store) InsertJob(ctx context.Context, job *types.JobPosting) (bool, error) {
	if job == nil {
		return false, types.NewValidationError("job", "job is required")
	}
	if err := job.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", types.ErrValidation, err)
	}

	sections, err := json.Marshal(map[types.FieldType]types.Section{
		types.FieldIntro:        job.Intro,
		types.FieldTasks:        job.Tasks,
		types.FieldExpectations: job.Expectations,
		types.FieldOffer:        job.Offer,
		types.FieldContact:      job.Contact,
	})
	if err != nil {
		return false, err
	}

	var published sql.NullTime
	if !job.PublishedAt.IsZero() {
		published = sql.NullTime{Time: job.PublishedAt, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (job_id, title, summary, company, location, country, display_text,
		                  sections, working_hours_min, working_hours_max,
		                  types, fields, domains, homeoffice, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (job_id) DO NOTHING`,
		job.ID, job.Title, job.Summary, job.Company, job.Location, job.Country, job.DisplayText,
		string(sections), job.WorkingHoursMin, job.WorkingHoursMax,
		pq.Array(tagSet(job.Types)), pq.Array(tagSet(job.Fields)),
		pq.Array(tagSet(job.Domains)), pq.Array(tagSet(job.Homeoffice)), published)
	if err != nil {
		if isConstraintError(err) {
			return false, fmt.Errorf("%w: job %s: %v", types.ErrIntegrity, job.ID, err)
		}
		return false, fmt.Errorf("failed to insert job: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const jobColumns = `j.job_id, j.title, j.summary, j.company, j.location, j.country, j.display_text,
		       j.sections, j.working_hours_min, j.working_hours_max,
		       j.types, j.fields, j.domains, j.homeoffice, j.published_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(sc rowScanner, extra ...interface{}) (*types.JobPosting, error) {
	var (
		job       types.JobPosting
		sections  []byte
		published sql.NullTime
	)
	dest := []interface{}{
		&job.ID, &job.Title, &job.Summary, &job.Company, &job.Location, &job.Country, &job.DisplayText,
		&sections, &job.WorkingHoursMin, &job.WorkingHoursMax,
		pq.Array(&job.Types), pq.Array(&job.Fields), pq.Array(&job.Domains), pq.Array(&job.Homeoffice),
		&published,
	}
	if err := sc.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	var bySection map[types.FieldType]types.Section
	if err := json.Unmarshal(sections, &bySection); err != nil {
		return nil, fmt.Errorf("failed to decode sections: %w", err)
	}
	job.Intro = bySection[types.FieldIntro]
	job.Tasks = bySection[types.FieldTasks]
	job.Expectations = bySection[types.FieldExpectations]
	job.Offer = bySection[types.FieldOffer]
	job.Contact = bySection[types.FieldContact]

	for _, tags := range []*[]string{&job.Types, &job.Fields, &job.Domains, &job.Homeoffice} {
		if len(*tags) == 0 {
			*tags = nil
		}
	}
	if published.Valid {
		job.PublishedAt = published.Time.UTC()
	}
	return &job, nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*types.JobPosting, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs j WHERE j.job_id = $1`, jobID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *Store) DeleteJob(ctx context.Context, jobID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, jobID)
	}
	return nil
}

// SelectJobs returns the jobs matching pred, ordered by search relevance
// when pred carries a text search and by publish date otherwise.
func (s *Store) SelectJobs(ctx context.Context, pred *filter.Predicate, limit int) ([]types.JobMatch, error) {
	var (
		query string
		args  []interface{}
	)

	tsq := tsQuery(pred.Search())
	if tsq != "" {
		args = append(args, tsq)
		where, whereArgs := pred.SQL(filter.Postgres, "j", 2)
		args = append(args, whereArgs...)
		query = `
		WITH rel AS (
			SELECT c.job_id, MAX(ts_rank_cd(c.tsv, q, 32)) AS score
			FROM job_chunks c, to_tsquery('simple', $1) q
			WHERE c.tsv @@ q
			GROUP BY c.job_id
		)
		SELECT ` + jobColumns + `, rel.score
		FROM jobs j
		INNER JOIN rel ON rel.job_id = j.job_id`
		if where != "" {
			query += " WHERE " + where
		}
		query += " ORDER BY rel.score DESC, j.job_id ASC"
	} else {
		where, whereArgs := pred.SQL(filter.Postgres, "j", 1)
		args = append(args, whereArgs...)
		query = `SELECT ` + jobColumns + `, 0::float8 FROM jobs j`
		if where != "" {
			query += " WHERE " + where
		}
		query += " ORDER BY j.published_at DESC NULLS LAST, j.job_id ASC"
	}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	matches := make([]types.JobMatch, 0)
	for rows.Next() {
		var relevance float64
		job, err := scanJob(rows, &relevance)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		matches = append(matches, types.JobMatch{Job: job, Relevance: relevance})
	}
	return matches, rows.Err()
}

func (s *Store) InsertChunks(ctx context.Context, jobID string, field types.FieldType, chunks []string, embeddings [][]float32) error {
	if !field.Valid() {
		return types.NewValidationError("field_type", "unknown field type %q", field)
	}
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("%w: %d chunks but %d embeddings", types.ErrIntegrity, len(chunks), len(embeddings))
	}
	for i, c := range chunks {
		if strings.TrimSpace(c) == "" {
			return types.NewValidationError("content", "chunk %d of %s is empty", i, field)
		}
	}
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := insertChunks(ctx, tx, jobID, field, chunks, embeddings); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func insertChunks(ctx context.Context, tx *sql.Tx, jobID string, field types.FieldType, chunks []string, embeddings [][]float32) error {
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM jobs WHERE job_id = $1`, jobID).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: job %s does not exist", types.ErrIntegrity, jobID)
	}
	if err != nil {
		return err
	}

	for i, content := range chunks {
		var vec interface{}
		if len(embeddings[i]) > 0 {
			vec = pgvector.NewVector(embeddings[i])
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO job_chunks (job_id, field_type, chunk_index, content, embedding) VALUES ($1, $2, $3, $4, $5)`,
			jobID, string(field), i, content, vec)
		if err != nil {
			if isConstraintError(err) {
				return fmt.Errorf("%w: chunk %s/%s/%d: %v", types.ErrIntegrity, jobID, field, i, err)
			}
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}
	return nil
}

func (s *Store) SemanticSearch(ctx context.Context, queryVector []float32, jobIDs []string, limit int) ([]types.ChunkHit, error) {
	if len(queryVector) == 0 {
		return nil, types.NewValidationError("query_vector", "query vector is empty")
	}

	// <=> is cosine distance; ordering on it lets an ivfflat/hnsw index serve the scan
	query := `
		SELECT c.id, c.job_id, c.field_type, c.chunk_index, c.content,
		       1 - (c.embedding <=> $1) AS score
		FROM job_chunks c
		WHERE c.embedding IS NOT NULL`
	args := []interface{}{pgvector.NewVector(queryVector)}
	query, args = applyJobAllowlist(query, args, jobIDs)
	query += " ORDER BY c.embedding <=> $1 ASC, c.id ASC"
	query, args = applyLimit(query, args, limit)

	return s.queryHits(ctx, query, args, types.ChannelSemantic)
}

// LexicalSearch ranks chunks with ts_rank_cd; normalisation flag 32 maps
// the rank to rank/(rank+1), matching the SQLite score range.
func (s *Store) LexicalSearch(ctx context.Context, text string, jobIDs []string, limit int) ([]types.ChunkHit, error) {
	tsq := tsQuery(text)
	if tsq == "" {
		return []types.ChunkHit{}, nil
	}

	query := `
		SELECT c.id, c.job_id, c.field_type, c.chunk_index, c.content,
		       ts_rank_cd(c.tsv, q, 32) AS score
		FROM job_chunks c, to_tsquery('simple', $1) q
		WHERE c.tsv @@ q`
	args := []interface{}{tsq}
	query, args = applyJobAllowlist(query, args, jobIDs)
	query += " ORDER BY score DESC, c.id ASC"
	query, args = applyLimit(query, args, limit)

	return s.queryHits(ctx, query, args, types.ChannelLexical)
}

func (s *Store) queryHits(ctx context.Context, query string, args []interface{}, channel types.Channel) ([]types.ChunkHit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s search: %w", channel, err)
	}
	defer func() { _ = rows.Close() }()

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
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{
		Backend:       "postgres",
		SchemaVersion: storage.CurrentSchemaVersion,
		ChunksByField: make(map[types.FieldType]int),
	}

	var lastPublished sql.NullTime
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), MAX(published_at) FROM jobs`).Scan(&stats.Jobs, &lastPublished); err != nil {
		return nil, err
	}
	if lastPublished.Valid {
		stats.LastPublishedAt = lastPublished.Time.UTC()
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(embedding) FROM job_chunks`).Scan(&stats.Chunks, &stats.EmbeddedChunks); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT field_type, COUNT(*) FROM job_chunks GROUP BY field_type`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			field string
			n     int
		)
		if err := rows.Scan(&field, &n); err != nil {
			return nil, err
		}
		stats.ChunksByField[types.FieldType(field)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var sizeBytes int64
	if err := s.db.QueryRowContext(ctx, `SELECT pg_database_size(current_database())`).Scan(&sizeBytes); err == nil {
		stats.IndexSizeMB = float64(sizeBytes) / (1024 * 1024)
	}

	stats.Health = storage.HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: stats.EmbeddedChunks > 0,
		VectorExtension:     true,
	}
	return stats, nil
}

// tsQuery builds an OR query over the distinct terms of text. Terms hold
// only letters and digits, so they are safe inside to_tsquery.
func tsQuery(text string) string {
	return strings.Join(chunker.Terms(text), " | ")
}

func applyJobAllowlist(query string, args []interface{}, jobIDs []string) (string, []interface{}) {
	if len(jobIDs) == 0 {
		return query, args
	}
	args = append(args, pq.Array(jobIDs))
	return query + fmt.Sprintf(" AND c.job_id = ANY($%d)", len(args)), args
}

func applyLimit(query string, args []interface{}, limit int) (string, []interface{}) {
	if limit <= 0 {
		return query, args
	}
	args = append(args, limit)
	return query + fmt.Sprintf(" LIMIT $%d", len(args)), args
}

func tagSet(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

var _ storage.Storage = (*Store)(nil)
