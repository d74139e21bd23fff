package storage

import (
	"context"
	"time"

	"github.com/dshills/jobsearch-mcp/internal/filter"
	"github.com/dshills/jobsearch-mcp/pkg/types"
)

// DefaultTopChunks caps the hits returned by one search call.
const DefaultTopChunks = 500

// Storage defines the chunk index over ingested job postings
type Storage interface {
	// Job operations
	InsertJob(ctx context.Context, job *types.JobPosting) (inserted bool, err error)
	GetJob(ctx context.Context, jobID string) (*types.JobPosting, error)
	DeleteJob(ctx context.Context, jobID string) error
	SelectJobs(ctx context.Context, pred *filter.Predicate, limit int) ([]types.JobMatch, error)

	// Chunk operations
	InsertChunks(ctx context.Context, jobID string, field types.FieldType, chunks []string, embeddings [][]float32) error

	// Search operations. A non-empty jobIDs restricts hits to those jobs.
	SemanticSearch(ctx context.Context, queryVector []float32, jobIDs []string, limit int) ([]types.ChunkHit, error)
	LexicalSearch(ctx context.Context, query string, jobIDs []string, limit int) ([]types.ChunkHit, error)

	// Status operations
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}

// Stats contains statistics about the index
type Stats struct {
	Backend         string
	SchemaVersion   string
	Jobs            int
	Chunks          int
	EmbeddedChunks  int
	ChunksByField   map[types.FieldType]int
	IndexSizeMB     float64
	LastPublishedAt time.Time
	Health          HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	VectorExtension     bool
}
