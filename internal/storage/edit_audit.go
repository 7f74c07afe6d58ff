package storage

// edit_audit.go contains SQLiteStore methods for the edit audit log.
// Every mutating operation (edit, restore, commit) creates an audit entry,
// successful or not, so a workspace's change history can be reconstructed
// even when snapshots have been pruned.

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"
)

// EditAuditEntry records one mutating operation against a workspace file.
type EditAuditEntry struct {
	// ID is the unique identifier for this audit entry (UUID).
	ID string

	// Operation is the operation kind: "edit", "restore", or "commit".
	Operation string

	// Workspace is the root the operation ran against.
	Workspace string

	// Path is the workspace-relative target.
	Path string

	// Mode is the edit mode for edit operations, empty otherwise.
	Mode string

	// Status is "success" or "error".
	Status string

	// Code is the error code for failed operations, empty on success.
	Code string

	// Message is the error message for failed operations.
	Message string

	// BackupTimestamp is the id of the snapshot taken or used, 0 if none.
	BackupTimestamp int64

	// At is when the operation finished.
	At time.Time
}

// SaveEditAudit persists an audit entry to the database.
func (s *SQLiteStore) SaveEditAudit(entry *EditAuditEntry) error {
	if entry == nil {
		return errors.New("audit entry cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `
		INSERT INTO edit_audit
			(id, operation, workspace, path, mode, status, code, message, backup_timestamp, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		entry.ID,
		entry.Operation,
		entry.Workspace,
		entry.Path,
		entry.Mode,
		entry.Status,
		entry.Code,
		entry.Message,
		entry.BackupTimestamp,
		entry.At.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save audit entry: %w", err)
	}

	return nil
}

// ListEditAudit returns audit entries in reverse chronological order
// (newest first), optionally filtered to one workspace-relative path.
// Use limit <= 0 to return all entries.
func (s *SQLiteStore) ListEditAudit(path string, limit int) ([]*EditAuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, operation, workspace, path, mode, status, code, message, backup_timestamp, at
		FROM edit_audit
	`
	var args []interface{}
	if path != "" {
		query += " WHERE path = ?"
		args = append(args, path)
	}
	query += " ORDER BY at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*EditAuditEntry
	for rows.Next() {
		entry, err := scanAuditRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}

	log.Printf("storage: listed %d audit entries", len(entries))
	return entries, nil
}

// scanAuditRow scans a row from sql.Rows into an EditAuditEntry.
func scanAuditRow(rows *sql.Rows) (*EditAuditEntry, error) {
	var (
		entry EditAuditEntry
		at    string
	)

	err := rows.Scan(
		&entry.ID,
		&entry.Operation,
		&entry.Workspace,
		&entry.Path,
		&entry.Mode,
		&entry.Status,
		&entry.Code,
		&entry.Message,
		&entry.BackupTimestamp,
		&at,
	)
	if err != nil {
		return nil, err
	}

	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return nil, fmt.Errorf("parse at: %w", err)
	}
	entry.At = t

	return &entry, nil
}
