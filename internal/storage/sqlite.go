package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dshills/jobsearch-mcp/internal/filter"
	"github.com/dshills/jobsearch-mcp/internal/vector"
	"github.com/dshills/jobsearch-mcp/pkg/types"
)

// ErrNotFound is returned when a requested job doesn't exist
var ErrNotFound = fmt.Errorf("job %w", types.ErrNotFound)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db        *sql.DB
	vecNative bool
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Single writer; also keeps a :memory: database on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db, vecNative: probeVectorExtension(db)}, nil
}

// probeVectorExtension reports whether vec_distance_cosine is callable.
// The cgo build only enables it when the extension is actually loaded.
func probeVectorExtension(db *sql.DB) bool {
	if !VectorExtensionAvailable {
		return false
	}
	one := vector.Encode([]float32{1})
	var d float64
	return db.QueryRow("SELECT vec_distance_cosine(?, ?)", one, one).Scan(&d) == nil
}

// DB exposes the underlying handle for migration tooling.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// withTx runs fn in a transaction, rolling back on error
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// isConstraintError matches UNIQUE, CHECK and FOREIGN KEY failures from
// either SQLite driver.
func isConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}

// Job operations

func (s *SQLiteStorage) InsertJob(ctx context.Context, job *types.JobPosting) (bool, error) {
	if job == nil {
		return false, types.NewValidationError("job", "job is required")
	}
	if err := job.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", types.ErrValidation, err)
	}

	row, err := encodeJob(job)
	if err != nil {
		return false, err
	}

	query := `
		INSERT INTO jobs (job_id, title, summary, company, location, country, display_text,
		                  sections, working_hours_min, working_hours_max,
		                  types, fields, domains, homeoffice, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		job.ID, job.Title, job.Summary, job.Company, job.Location, job.Country, job.DisplayText,
		row.sections, job.WorkingHoursMin, job.WorkingHoursMax,
		row.types, row.fields, row.domains, row.homeoffice, row.publishedAt)
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

func scanJob(sc rowScanner) (*types.JobPosting, error) {
	var (
		job types.JobPosting
		row jobRow
	)
	err := sc.Scan(
		&job.ID, &job.Title, &job.Summary, &job.Company, &job.Location, &job.Country, &job.DisplayText,
		&row.sections, &job.WorkingHoursMin, &job.WorkingHoursMax,
		&row.types, &row.fields, &row.domains, &row.homeoffice, &row.publishedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := row.decodeInto(&job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *SQLiteStorage) GetJob(ctx context.Context, jobID string) (*types.JobPosting, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs j WHERE j.job_id = ?`
	job, err := scanJob(s.db.QueryRowContext(ctx, query, jobID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// DeleteJob removes a job; its chunks go with it through the cascade.
func (s *SQLiteStorage) DeleteJob(ctx context.Context, jobID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM jobs WHERE job_id = ?", jobID)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return nil
}

// SelectJobs returns the jobs matching pred. With a text search the matches
// carry the best chunk relevance and are ordered by it; otherwise they are
// ordered by publish date, newest first. limit <= 0 means no limit.
func (s *SQLiteStorage) SelectJobs(ctx context.Context, pred *filter.Predicate, limit int) ([]types.JobMatch, error) {
	where, args := pred.SQL(filter.SQLite, "j", 1)

	var relevance map[string]float64
	if search := pred.Search(); search != "" {
		var err error
		relevance, err = s.jobRelevance(ctx, search)
		if err != nil {
			return nil, err
		}
		if relevance != nil && len(relevance) == 0 {
			return []types.JobMatch{}, nil
		}
	}

	query := `SELECT ` + jobColumns + ` FROM jobs j`
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY j.published_at IS NULL, j.published_at DESC, j.job_id ASC"
	if relevance == nil && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	matches := make([]types.JobMatch, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		if relevance == nil {
			matches = append(matches, types.JobMatch{Job: job})
			continue
		}
		if score, ok := relevance[job.ID]; ok {
			matches = append(matches, types.JobMatch{Job: job, Relevance: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if relevance != nil {
		sort.SliceStable(matches, func(i, k int) bool {
			if matches[i].Relevance != matches[k].Relevance {
				return matches[i].Relevance > matches[k].Relevance
			}
			return matches[i].Job.ID < matches[k].Job.ID
		})
		if limit > 0 && len(matches) > limit {
			matches = matches[:limit]
		}
	}
	return matches, nil
}

// jobRelevance scores jobs by their best lexical chunk hit. A nil map means
// the search had no usable terms and imposes no constraint.
func (s *SQLiteStorage) jobRelevance(ctx context.Context, search string) (map[string]float64, error) {
	match := FTSQuery(search)
	if match == "" {
		return nil, nil
	}
	hits, err := searchText(ctx, s.db, match, nil, -1)
	if err != nil {
		return nil, err
	}
	relevance := make(map[string]float64)
	for _, h := range hits {
		if h.Score > relevance[h.JobID] {
			relevance[h.JobID] = h.Score
		}
	}
	return relevance, nil
}

// Chunk operations

// InsertChunks stores the chunks of one field in a single transaction.
// chunks[i] gets chunk index i and embedding embeddings[i].
func (s *SQLiteStorage) InsertChunks(ctx context.Context, jobID string, field types.FieldType, chunks []string, embeddings [][]float32) error {
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

	return s.withTx(ctx, func(q querier) error {
		var exists int
		err := q.QueryRowContext(ctx, "SELECT 1 FROM jobs WHERE job_id = ?", jobID).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: job %s does not exist", types.ErrIntegrity, jobID)
		}
		if err != nil {
			return err
		}

		for i, content := range chunks {
			var blob []byte
			if len(embeddings[i]) > 0 {
				blob = vector.Encode(embeddings[i])
			}
			_, err := q.ExecContext(ctx,
				"INSERT INTO job_chunks (job_id, field_type, chunk_index, content, embedding) VALUES (?, ?, ?, ?, ?)",
				jobID, string(field), i, content, blob)
			if err != nil {
				if isConstraintError(err) {
					return fmt.Errorf("%w: chunk %s/%s/%d: %v", types.ErrIntegrity, jobID, field, i, err)
				}
				return fmt.Errorf("failed to insert chunk: %w", err)
			}
		}
		return nil
	})
}

// Search operations

func (s *SQLiteStorage) SemanticSearch(ctx context.Context, queryVector []float32, jobIDs []string, limit int) ([]types.ChunkHit, error) {
	if len(queryVector) == 0 {
		return nil, types.NewValidationError("query_vector", "query vector is empty")
	}
	if s.vecNative {
		return searchVectorOptimized(ctx, s.db, queryVector, jobIDs, limit)
	}
	return searchVectorFallback(ctx, s.db, queryVector, jobIDs, limit)
}

func (s *SQLiteStorage) LexicalSearch(ctx context.Context, query string, jobIDs []string, limit int) ([]types.ChunkHit, error) {
	match := FTSQuery(query)
	if match == "" {
		return []types.ChunkHit{}, nil
	}
	return searchText(ctx, s.db, match, jobIDs, limit)
}

// Status operations

func (s *SQLiteStorage) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Backend:       "sqlite/" + BuildMode,
		ChunksByField: make(map[types.FieldType]int),
	}

	version, err := SchemaVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}
	stats.SchemaVersion = version.String()

	var lastPublished sql.NullInt64
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*), MAX(published_at) FROM jobs").Scan(&stats.Jobs, &lastPublished)
	if err != nil {
		return nil, err
	}
	if lastPublished.Valid {
		stats.LastPublishedAt = time.Unix(lastPublished.Int64, 0).UTC()
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(embedding) FROM job_chunks").Scan(&stats.Chunks, &stats.EmbeddedChunks)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT field_type, COUNT(*) FROM job_chunks GROUP BY field_type")
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

	var pageCount, pageSize int
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	stats.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: stats.EmbeddedChunks > 0,
		VectorExtension:     s.vecNative,
	}
	return stats, nil
}

// jobRow holds the encoded form of the JSON columns.
type jobRow struct {
	sections    string
	types       string
	fields      string
	domains     string
	homeoffice  string
	publishedAt sql.NullInt64
}

func encodeJob(job *types.JobPosting) (*jobRow, error) {
	sections := map[types.FieldType]types.Section{
		types.FieldIntro:        job.Intro,
		types.FieldTasks:        job.Tasks,
		types.FieldExpectations: job.Expectations,
		types.FieldOffer:        job.Offer,
		types.FieldContact:      job.Contact,
	}

	var row jobRow
	var err error
	if row.sections, err = encodeJSON(sections); err != nil {
		return nil, err
	}
	if row.types, err = encodeJSON(tagSet(job.Types)); err != nil {
		return nil, err
	}
	if row.fields, err = encodeJSON(tagSet(job.Fields)); err != nil {
		return nil, err
	}
	if row.domains, err = encodeJSON(tagSet(job.Domains)); err != nil {
		return nil, err
	}
	if row.homeoffice, err = encodeJSON(tagSet(job.Homeoffice)); err != nil {
		return nil, err
	}
	if !job.PublishedAt.IsZero() {
		row.publishedAt = sql.NullInt64{Int64: job.PublishedAt.Unix(), Valid: true}
	}
	return &row, nil
}

func (r *jobRow) decodeInto(job *types.JobPosting) error {
	var sections map[types.FieldType]types.Section
	if err := json.Unmarshal([]byte(r.sections), &sections); err != nil {
		return fmt.Errorf("failed to decode sections: %w", err)
	}
	job.Intro = sections[types.FieldIntro]
	job.Tasks = sections[types.FieldTasks]
	job.Expectations = sections[types.FieldExpectations]
	job.Offer = sections[types.FieldOffer]
	job.Contact = sections[types.FieldContact]

	for _, tags := range []struct {
		raw string
		dst *[]string
	}{
		{r.types, &job.Types},
		{r.fields, &job.Fields},
		{r.domains, &job.Domains},
		{r.homeoffice, &job.Homeoffice},
	} {
		if err := json.Unmarshal([]byte(tags.raw), tags.dst); err != nil {
			return fmt.Errorf("failed to decode tags: %w", err)
		}
		if len(*tags.dst) == 0 {
			*tags.dst = nil
		}
	}

	if r.publishedAt.Valid {
		job.PublishedAt = time.Unix(r.publishedAt.Int64, 0).UTC()
	}
	return nil
}

func encodeJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func tagSet(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

var _ Storage = (*SQLiteStorage)(nil)
