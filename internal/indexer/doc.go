// Package indexer ingests job postings into the chunk index.
//
// # Basic Usage
//
//	idx, err := indexer.New(store, emb, &indexer.Config{PoolSize: 4})
//	defer idx.Close()
//
//	stats, err := idx.IngestFile(ctx, "jobs.json")
//	fmt.Printf("Inserted %d jobs in %v\n", stats.JobsInserted, stats.Duration)
//
// # Pipeline
//
// For every job:
//
//  1. Insert the job row. A job that already exists is skipped, which makes
//     re-running an ingestion idempotent.
//  2. Clean each non-empty text field, split it into overlapping chunks and
//     embed the chunks in document mode.
//  3. Store the chunks with their embeddings.
//
// Jobs are processed concurrently on an ants worker pool. When embedding or
// storing a job's chunks fails the job row is deleted again and the job is
// counted in Statistics.JobsFailed; the run continues with the other jobs.
//
// # Documents
//
// IngestFile expects {"jobs": [...]} (or a bare array) and validates it
// against an embedded JSON schema before anything is written. Schema
// violations are reported as types.ErrValidation.
//
// # Concurrency
//
// Only one ingestion run may be active per Indexer; a concurrent call gets
// ErrIngestInProgress. Ranking may observe partially ingested jobs.
package indexer
