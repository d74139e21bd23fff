// Package storage is the chunk index: job postings, their per-field chunks
// with embeddings, and the two search channels over them.
//
// # Database Schema
//
// Tables:
//   - jobs: one row per posting; tag sets and sections are JSON columns
//   - job_chunks: (job_id, field_type, chunk_index) is unique, rows cascade
//     with their job, embeddings are little-endian float32 blobs
//   - job_chunks_fts: FTS5 external-content index over chunk text, kept in
//     sync by triggers
//   - schema_version: applied migrations, compared as semver
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("jobs.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	inserted, err := db.InsertJob(ctx, job)
//	err = db.InsertChunks(ctx, job.ID, types.FieldTasks, chunks, vectors)
//
// # Search Channels
//
// LexicalSearch matches any query term through FTS5 and maps bm25 into
// (0,1) with s/(1+s). SemanticSearch returns cosine similarity. Both order
// by score descending with chunk id as the tie-break, honour an optional
// job allowlist, and cap at limit.
//
// # Build Modes
//
// The default build uses modernc.org/sqlite and computes cosine similarity
// in Go. The sqlite_vec tag switches to mattn/go-sqlite3 and pushes
// similarity into SQL when the sqlite-vec extension is loaded.
//
// The postgres subpackage implements the same interface on pgvector.
package storage
