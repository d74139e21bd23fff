package indexer

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/dshills/jobsearch-mcp/internal/chunker"
	"github.com/dshills/jobsearch-mcp/internal/embedder"
	"github.com/dshills/jobsearch-mcp/internal/logging"
	"github.com/dshills/jobsearch-mcp/internal/metrics"
	"github.com/dshills/jobsearch-mcp/pkg/types"
)

// ErrIngestInProgress is returned when another ingestion run holds the indexer.
var ErrIngestInProgress = errors.New("ingestion already in progress")

//go:embed job.schema.json
var documentSchema string

var schemaLoader = gojsonschema.NewStringLoader(documentSchema)

// maxReportedSchemaErrors caps the schema violations quoted in an error.
const maxReportedSchemaErrors = 5

// Store is the part of the chunk index ingestion writes to.
type Store interface {
	InsertJob(ctx context.Context, job *types.JobPosting) (bool, error)
	DeleteJob(ctx context.Context, jobID string) error
	InsertChunks(ctx context.Context, jobID string, field types.FieldType, chunks []string, embeddings [][]float32) error
}

// Config contains configuration for the indexer
type Config struct {
	PoolSize int              // concurrent jobs being embedded (default: runtime.NumCPU())
	Chunker  *chunker.Chunker // default: chunker.Default()
	Logger   *zap.Logger
}

// Statistics contains statistics about an ingestion run
type Statistics struct {
	JobsInserted  int           `json:"jobs_inserted"`
	JobsSkipped   int           `json:"jobs_skipped"`
	JobsFailed    int           `json:"jobs_failed"`
	ChunksCreated int           `json:"chunks_created"`
	Duration      time.Duration `json:"duration"`
	ErrorMessages []string      `json:"errors,omitempty"`
}

// Indexer runs the ingestion pipeline: clean -> chunk -> embed -> store
type Indexer struct {
	store    Store
	embedder embedder.Embedder
	chunker  *chunker.Chunker
	pool     *ants.Pool
	logger   *zap.Logger
	lock     ingestLock
}

// New creates an Indexer. Close releases its worker pool.
func New(store Store, emb embedder.Embedder, cfg *Config) (*Indexer, error) {
	if store == nil || emb == nil {
		return nil, errors.New("indexer: store and embedder are required")
	}
	if cfg == nil {
		cfg = &Config{}
	}

	size := cfg.PoolSize
	if size <= 0 {
		size = runtime.NumCPU()
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest pool: %w", err)
	}

	c := cfg.Chunker
	if c == nil {
		c = chunker.Default()
	}

	return &Indexer{
		store:    store,
		embedder: emb,
		chunker:  c,
		pool:     pool,
		logger:   logging.OrNop(cfg.Logger),
	}, nil
}

// Close releases the worker pool.
func (idx *Indexer) Close() {
	idx.pool.Release()
}

// IngestFile validates a JSON document of the form {"jobs": [...]} and
// ingests its jobs. A bare array of jobs is accepted as well.
func (idx *Indexer) IngestFile(ctx context.Context, path string) (*Statistics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	jobs, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	return idx.IngestJobs(ctx, jobs)
}

// ParseDocument validates data against the ingestion schema and decodes it.
func ParseDocument(data []byte) ([]*types.JobPosting, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		data = append(append([]byte(`{"jobs":`), data...), '}')
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, types.NewValidationError("document", "invalid JSON: %v", err)
	}
	if !result.Valid() {
		var msgs []string
		for i, desc := range result.Errors() {
			if i == maxReportedSchemaErrors {
				msgs = append(msgs, fmt.Sprintf("and %d more", len(result.Errors())-i))
				break
			}
			msgs = append(msgs, desc.String())
		}
		return nil, types.NewValidationError("document", "%s", strings.Join(msgs, "; "))
	}

	var doc struct {
		Jobs []*types.JobPosting `json:"jobs"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, types.NewValidationError("document", "%v", err)
	}
	return doc.Jobs, nil
}

// IngestJobs inserts jobs that are not yet indexed, then chunks and embeds
// their text fields. Existing jobs are skipped. A job whose chunks cannot be
// embedded or stored is removed again and counted as failed; the run
// continues with the remaining jobs.
func (idx *Indexer) IngestJobs(ctx context.Context, jobs []*types.JobPosting) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIngestInProgress
	}
	defer idx.lock.Release()

	start := time.Now()
	stats := &Statistics{ErrorMessages: make([]string, 0)}

	var (
		inserted atomic.Int32
		skipped  atomic.Int32
		failed   atomic.Int32
		chunks   atomic.Int32
		mu       sync.Mutex // protects stats.ErrorMessages
		wg       sync.WaitGroup
	)

	fail := func(jobID string, err error) {
		failed.Add(1)
		metrics.IngestedJobs.WithLabelValues("failed").Inc()
		mu.Lock()
		stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", jobID, err))
		mu.Unlock()
	}

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			break
		}
		if job == nil {
			continue
		}

		wg.Add(1)
		err := idx.pool.Submit(func() {
			defer wg.Done()

			n, ok, err := idx.ingestJob(ctx, job)
			switch {
			case err != nil:
				fail(job.ID, err)
				idx.logger.Warn("job ingestion failed", zap.String("job_id", job.ID), zap.Error(err))
			case !ok:
				skipped.Add(1)
				metrics.IngestedJobs.WithLabelValues("skipped").Inc()
			default:
				inserted.Add(1)
				chunks.Add(int32(n))
				metrics.IngestedJobs.WithLabelValues("inserted").Inc()
			}
		})
		if err != nil {
			wg.Done()
			fail(job.ID, fmt.Errorf("failed to schedule: %w", err))
		}
	}
	wg.Wait()

	stats.JobsInserted = int(inserted.Load())
	stats.JobsSkipped = int(skipped.Load())
	stats.JobsFailed = int(failed.Load())
	stats.ChunksCreated = int(chunks.Load())
	stats.Duration = time.Since(start)

	idx.logger.Info("ingestion finished",
		zap.Int("inserted", stats.JobsInserted),
		zap.Int("skipped", stats.JobsSkipped),
		zap.Int("failed", stats.JobsFailed),
		zap.Int("chunks", stats.ChunksCreated),
		zap.Duration("duration", stats.Duration))

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

// fieldChunks holds one field's chunks and their embeddings.
type fieldChunks struct {
	field      types.FieldType
	chunks     []string
	embeddings [][]float32
}

// ingestJob stores a single job and reports the number of chunks written and
// whether the job was new.
func (idx *Indexer) ingestJob(ctx context.Context, job *types.JobPosting) (int, bool, error) {
	inserted, err := idx.store.InsertJob(ctx, job)
	if err != nil {
		return 0, false, err
	}
	if !inserted {
		return 0, false, nil
	}

	fields, err := idx.embedFields(ctx, job)
	if err == nil {
		err = idx.storeFields(ctx, job.ID, fields)
	}
	if err != nil {
		// Remove the job so no job is left without chunks. Use a fresh
		// context since ctx may be the reason for the failure.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if delErr := idx.store.DeleteJob(cleanupCtx, job.ID); delErr != nil {
			err = errors.Join(err, fmt.Errorf("cleanup: %w", delErr))
		}
		return 0, true, err
	}

	total := 0
	for _, f := range fields {
		total += len(f.chunks)
	}
	return total, true, nil
}

func (idx *Indexer) embedFields(ctx context.Context, job *types.JobPosting) ([]fieldChunks, error) {
	var fields []fieldChunks
	for _, field := range types.FieldTypes {
		text := chunker.Clean(job.FieldText(field))
		if text == "" {
			continue
		}
		parts := idx.chunker.Chunk(text)
		if len(parts) == 0 {
			continue
		}

		vectors, err := idx.embedder.EmbedMany(ctx, parts, embedder.ModeDocument)
		if err != nil {
			return nil, fmt.Errorf("embed %s: %w", field, err)
		}
		fields = append(fields, fieldChunks{field: field, chunks: parts, embeddings: vectors})
	}
	return fields, nil
}

func (idx *Indexer) storeFields(ctx context.Context, jobID string, fields []fieldChunks) error {
	for _, f := range fields {
		if err := idx.store.InsertChunks(ctx, jobID, f.field, f.chunks, f.embeddings); err != nil {
			return fmt.Errorf("store %s chunks: %w", f.field, err)
		}
	}
	return nil
}
