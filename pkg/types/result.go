package types

// JobScoreEntry aggregates both channels' evidence for one job during a
// single ranking call.
type JobScoreEntry struct {
	JobID         string
	SemanticScore float64 // max semantic hit score, 0 if none
	LexicalScore  float64 // max lexical hit score, 0 if none
	Chunks        map[ChunkKey]*ScoredChunk
}

// ScoredChunk is a deduplicated chunk with its summed score across channels.
type ScoredChunk struct {
	ChunkID    int64     `json:"chunk_id"`
	FieldType  FieldType `json:"field_type"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Score      float64   `json:"score"`
	Channels   []Channel `json:"channels"`
}

// RankedJob is the final output unit of a ranking call.
type RankedJob struct {
	JobID string  `json:"job_id"`
	Score float64 `json:"score"`

	SemanticScore      float64 `json:"semantic_score"`
	LexicalScore       float64 `json:"lexical_score"`
	NormalizedSemantic float64 `json:"normalized_semantic"`
	NormalizedLexical  float64 `json:"normalized_lexical"`

	Chunks []ScoredChunk `json:"chunks"`
}

// JobMatch is a job selected by a filter predicate. Relevance is set only
// when the filter carried a free-text search.
type JobMatch struct {
	Job       *JobPosting `json:"job"`
	Relevance float64     `json:"relevance"`
}

// SimilarJob is a job found by semantic similarity alone.
type SimilarJob struct {
	JobID      string  `json:"job_id"`
	Similarity float64 `json:"similarity"`
}
