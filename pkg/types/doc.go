// Package types provides shared type definitions for the jobsearch MCP server.
//
// # Core Types
//
// JobPosting is the read-only record owned by the ingestion boundary. Its long
// text fields are chunked per FieldType and indexed as Chunk rows:
//
//	chunk := &types.Chunk{
//	    JobID:      "job-1",
//	    FieldType:  types.FieldTasks,
//	    ChunkIndex: 0,
//	    Content:    "Develop backend services in Go.",
//	}
//
// Retrieval produces ChunkHit values tagged with the channel that found them.
// The ranker folds hits into one JobScoreEntry per job and emits RankedJob
// values ordered by fused score.
//
// # Errors
//
// The error taxonomy is expressed as sentinel errors. Wrap them with %w and
// test with errors.Is:
//
//	if errors.Is(err, types.ErrValidation) {
//	    // reject the request
//	}
package types
