package types

import (
	"errors"
	"fmt"
)

// FieldType names the JobPosting field a chunk was derived from.
type FieldType string

const (
	FieldTitle        FieldType = "title"
	FieldSummary      FieldType = "summary"
	FieldIntro        FieldType = "intro"
	FieldTasks        FieldType = "tasks"
	FieldExpectations FieldType = "expectations"
	FieldOffer        FieldType = "offer"
	FieldContact      FieldType = "contact"
)

// FieldTypes lists every chunked field in ingestion order.
var FieldTypes = []FieldType{
	FieldTitle,
	FieldSummary,
	FieldIntro,
	FieldTasks,
	FieldExpectations,
	FieldOffer,
	FieldContact,
}

// Valid reports whether f is a known field type.
func (f FieldType) Valid() bool {
	for _, known := range FieldTypes {
		if f == known {
			return true
		}
	}
	return false
}

// Channel identifies the retrieval channel that produced a hit.
type Channel string

const (
	ChannelLexical  Channel = "lexical"
	ChannelSemantic Channel = "semantic"
)

// Chunk is a bounded slice of one JobPosting field, embedded and indexed on its own.
type Chunk struct {
	ID         int64
	JobID      string
	FieldType  FieldType
	ChunkIndex int
	Content    string
	Embedding  []float32
}

// ChunkKey identifies a chunk within its job.
type ChunkKey struct {
	FieldType  FieldType
	ChunkIndex int
}

// Key returns the per-job identity of the chunk.
func (c *Chunk) Key() ChunkKey {
	return ChunkKey{FieldType: c.FieldType, ChunkIndex: c.ChunkIndex}
}

// Validate checks the chunk invariants.
func (c *Chunk) Validate() error {
	if c.JobID == "" {
		return errors.New("job ID is required")
	}
	if !c.FieldType.Valid() {
		return fmt.Errorf("invalid field type %q", c.FieldType)
	}
	if c.ChunkIndex < 0 {
		return errors.New("chunk index must be >= 0")
	}
	if c.Content == "" {
		return errors.New("chunk content cannot be empty")
	}
	return nil
}

// ChunkHit is a chunk returned by one retrieval channel with its raw score.
// Scores are channel specific and not comparable across channels.
type ChunkHit struct {
	ChunkID    int64
	JobID      string
	FieldType  FieldType
	ChunkIndex int
	Content    string
	Score      float64
	Channel    Channel
}

// Key returns the per-job identity of the hit's chunk.
func (h ChunkHit) Key() ChunkKey {
	return ChunkKey{FieldType: h.FieldType, ChunkIndex: h.ChunkIndex}
}
