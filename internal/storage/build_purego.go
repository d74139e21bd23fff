//go:build purego || !sqlite_vec
// +build purego !sqlite_vec

package storage

// Default build: pure Go SQLite (modernc.org/sqlite), FTS5 included, no C
// toolchain needed. Semantic search scores chunks in Go.

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// VectorExtensionAvailable reports whether the build can use sqlite-vec
	VectorExtensionAvailable = false

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
