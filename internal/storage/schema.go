package storage

import (
	"fmt"
	"log"
	"time"
)

// currentSchemaVersion is the current database schema version.
// Increment this when making schema changes and add migration logic.
const currentSchemaVersion = 1

// initSchema creates the required tables if they don't exist.
// Uses IF NOT EXISTS to make the operation idempotent.
func (s *SQLiteStore) initSchema() error {
	// Schema version table tracks database migrations.
	// This allows future schema changes to be applied incrementally.
	const schemaVersionTable = `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);
	`

	if _, err := s.db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	// Check current version
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}

	// Apply migrations based on current version
	if version < 1 {
		if err := s.migrateToV1(); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	return nil
}

// migrateToV1 creates the initial schema (edit_audit table).
func (s *SQLiteStore) migrateToV1() error {
	log.Printf("storage: applying migration to schema version 1")

	// Timestamps are stored as RFC3339 strings for readability and
	// portability.
	const auditTable = `
		CREATE TABLE IF NOT EXISTS edit_audit (
			id TEXT PRIMARY KEY,
			operation TEXT NOT NULL,
			workspace TEXT NOT NULL,
			path TEXT NOT NULL,
			mode TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			code TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			backup_timestamp INTEGER NOT NULL DEFAULT 0,
			at TEXT NOT NULL
		);

		-- Index for path-scoped history queries.
		CREATE INDEX IF NOT EXISTS idx_edit_audit_path ON edit_audit(path);
	`

	if _, err := s.db.Exec(auditTable); err != nil {
		return fmt.Errorf("create edit_audit table: %w", err)
	}

	// Record the migration
	_, err := s.db.Exec(
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		1,
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record migration: %w", err)
	}

	return nil
}
