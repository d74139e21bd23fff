//go:build sqlite_vec
// +build sqlite_vec

package storage

// Compiled with CGO and the sqlite_vec tag:
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec,sqlite_fts5" ./...
//
// Semantic search runs in SQL through vec_distance_cosine when the
// sqlite-vec extension is loaded into the driver; NewSQLiteStorage probes
// for it and falls back to Go cosine otherwise.

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// VectorExtensionAvailable reports whether the build can use sqlite-vec
	VectorExtensionAvailable = true

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
