package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the database schema version
	CurrentSchemaVersion = "1.1.0"
)

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      migrationV1Up,
		Down:    migrationV1Down,
	},
	{
		Version: "1.1.0",
		Up:      migrationV11Up,
		Down:    migrationV11Down,
	},
}

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Job postings. Tag sets are JSON arrays, sections a JSON object keyed by field type.
CREATE TABLE IF NOT EXISTS jobs (
    job_id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    company TEXT NOT NULL DEFAULT '',
    location TEXT NOT NULL DEFAULT '',
    country TEXT NOT NULL DEFAULT '',
    display_text TEXT NOT NULL DEFAULT '',
    sections TEXT NOT NULL DEFAULT '{}',
    working_hours_min INTEGER NOT NULL DEFAULT 0,
    working_hours_max INTEGER NOT NULL DEFAULT 0,
    types TEXT NOT NULL DEFAULT '[]',
    fields TEXT NOT NULL DEFAULT '[]',
    domains TEXT NOT NULL DEFAULT '[]',
    homeoffice TEXT NOT NULL DEFAULT '[]',
    published_at INTEGER,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    CHECK (working_hours_min >= 0 AND working_hours_max >= working_hours_min)
);

CREATE TABLE IF NOT EXISTS job_chunks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id TEXT NOT NULL,
    field_type TEXT NOT NULL CHECK (field_type IN ('title', 'summary', 'intro', 'tasks', 'expectations', 'offer', 'contact')),
    chunk_index INTEGER NOT NULL CHECK (chunk_index >= 0),
    content TEXT NOT NULL CHECK (length(content) > 0),
    embedding BLOB,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (job_id) REFERENCES jobs(job_id) ON DELETE CASCADE,
    UNIQUE(job_id, field_type, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_job_chunks_job ON job_chunks(job_id);

-- Full-text search on chunk content
CREATE VIRTUAL TABLE IF NOT EXISTS job_chunks_fts USING fts5(
    content,
    content='job_chunks',
    content_rowid='id',
    tokenize='unicode61'
);

-- Triggers to keep FTS in sync
CREATE TRIGGER IF NOT EXISTS job_chunks_ai AFTER INSERT ON job_chunks BEGIN
    INSERT INTO job_chunks_fts(rowid, content) VALUES (new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS job_chunks_ad AFTER DELETE ON job_chunks BEGIN
    INSERT INTO job_chunks_fts(job_chunks_fts, rowid, content) VALUES ('delete', old.id, old.content);
END;

CREATE TRIGGER IF NOT EXISTS job_chunks_au AFTER UPDATE ON job_chunks BEGIN
    INSERT INTO job_chunks_fts(job_chunks_fts, rowid, content) VALUES ('delete', old.id, old.content);
    INSERT INTO job_chunks_fts(rowid, content) VALUES (new.id, new.content);
END;
`

const migrationV1Down = `
DROP TRIGGER IF EXISTS job_chunks_au;
DROP TRIGGER IF EXISTS job_chunks_ad;
DROP TRIGGER IF EXISTS job_chunks_ai;

DROP TABLE IF EXISTS job_chunks_fts;
DROP TABLE IF EXISTS job_chunks;
DROP TABLE IF EXISTS jobs;
`

// Filter listings without a search are ordered by publish date.
const migrationV11Up = `
CREATE INDEX IF NOT EXISTS idx_jobs_published ON jobs(published_at DESC, job_id);
CREATE INDEX IF NOT EXISTS idx_jobs_hours ON jobs(working_hours_min, working_hours_max);
`

const migrationV11Down = `
DROP INDEX IF EXISTS idx_jobs_hours;
DROP INDEX IF EXISTS idx_jobs_published;
`

// SchemaVersion returns the highest applied migration version, or 0.0.0 on
// a fresh database.
func SchemaVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	var tableName string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if err == sql.ErrNoRows {
		return semver.MustParse("0.0.0"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer func() { _ = rows.Close() }()

	// applied_at has one-second resolution, so compare versions rather than timestamps
	current := semver.MustParse("0.0.0")
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		v, err := semver.NewVersion(s)
		if err != nil {
			return nil, fmt.Errorf("invalid schema version %s: %w", s, err)
		}
		if v.GreaterThan(current) {
			current = v
		}
	}
	return current, rows.Err()
}

// ApplyMigrations runs all pending migrations
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	currentVersion, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range AllMigrations {
		migrationVersion, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}

		if !currentVersion.LessThan(migrationVersion) {
			continue
		}

		if _, err := db.ExecContext(ctx, migration.Up); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}

		if _, err := db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}

		currentVersion = migrationVersion
	}

	return nil
}

// RollbackMigration rolls back the most recent migration
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current.Equal(semver.MustParse("0.0.0")) {
		return fmt.Errorf("no migrations to rollback")
	}

	var migration *Migration
	for i := range AllMigrations {
		if AllMigrations[i].Version == current.Original() {
			migration = &AllMigrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration %s not found", current.Original())
	}

	if _, err := db.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", migration.Version, err)
	}

	if _, err := db.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", migration.Version); err != nil {
		return fmt.Errorf("failed to remove migration record %s: %w", migration.Version, err)
	}

	return nil
}
