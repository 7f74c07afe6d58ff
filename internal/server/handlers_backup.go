package server

import (
	"encoding/json"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/safedit/host/internal/backup"
	apperrors "github.com/safedit/host/internal/errors"
	"github.com/safedit/host/internal/storage"
)

// handleBackup processes the backup.* request family.
func (c *Client) handleBackup(reqType MessageType, reqID string, data []byte) {
	var msg struct {
		Type    MessageType   `json:"type"`
		ID      string        `json:"id,omitempty"`
		Payload BackupPayload `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("server: failed to parse %s payload: %v", reqType, err)
		c.sendBackupError(reqType, reqID, apperrors.InvalidMessage("invalid message format"))
		return
	}

	p := msg.Payload

	if reqType != MessageTypeBackupList && p.Path == "" {
		c.sendBackupError(reqType, reqID, apperrors.InvalidMessage("path is required"))
		return
	}

	switch reqType {
	case MessageTypeBackupCreate:
		rp, err := c.server.guard.Resolve(p.Path)
		if err != nil {
			c.sendBackupError(reqType, reqID, err)
			return
		}
		rec, err := c.server.backups.Create(rp)
		if err != nil {
			c.sendBackupError(reqType, reqID, err)
			return
		}
		c.sendResult(NewResultMessage(reqType, reqID, BackupResultPayload{OK: true, Record: rec}))

	case MessageTypeBackupList:
		rel, err := c.relForHistory(p.Path)
		if err != nil {
			c.sendBackupError(reqType, reqID, err)
			return
		}
		records, err := c.server.backups.List(rel)
		if err != nil {
			c.sendBackupError(reqType, reqID, err)
			return
		}
		c.sendResult(NewResultMessage(reqType, reqID, BackupResultPayload{OK: true, Records: records}))

	case MessageTypeBackupRestore:
		if c.editLimiter != nil && !c.editLimiter.Allow() {
			log.Printf("server: backup.restore rate limited")
			c.sendBackupError(reqType, reqID, apperrors.RateLimited())
			return
		}
		// ResolveForWrite so a deleted live file can be recreated from
		// its snapshot.
		rp, err := c.server.guard.ResolveForWrite(p.Path)
		if err != nil {
			c.sendBackupError(reqType, reqID, err)
			return
		}
		rec, err := c.server.backups.Restore(rp, p.Timestamp)
		c.recordBackupAudit("restore", p.Path, rec, err)
		if err != nil {
			c.sendBackupError(reqType, reqID, err)
			return
		}
		c.sendResult(NewResultMessage(reqType, reqID, BackupResultPayload{OK: true, Record: rec}))

	case MessageTypeBackupCommit:
		if p.Message == "" {
			c.sendBackupError(reqType, reqID, apperrors.InvalidMessage("message is required"))
			return
		}
		rp, err := c.server.guard.ResolveForWrite(p.Path)
		if err != nil {
			c.sendBackupError(reqType, reqID, err)
			return
		}
		rec, err := c.server.backups.Commit(rp, p.Message)
		c.recordBackupAudit("commit", p.Path, rec, err)
		if err != nil {
			c.sendBackupError(reqType, reqID, err)
			return
		}
		c.sendResult(NewResultMessage(reqType, reqID, BackupResultPayload{OK: true, Record: rec}))

	case MessageTypeBackupCompare:
		rp, err := c.server.guard.ResolveForWrite(p.Path)
		if err != nil {
			c.sendBackupError(reqType, reqID, err)
			return
		}
		diffText, err := c.server.backups.Compare(rp, p.Timestamp)
		if err != nil {
			c.sendBackupError(reqType, reqID, err)
			return
		}
		c.sendResult(NewResultMessage(reqType, reqID, BackupResultPayload{OK: true, Diff: diffText}))
	}
}

// relForHistory maps a listing path to a workspace-relative one. The live
// file may already be deleted while its snapshots remain, so a missing file
// falls back to the path as given; boundary violations still fail.
func (c *Client) relForHistory(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	rp, err := c.server.guard.Resolve(path)
	if err == nil {
		return rp.Rel(), nil
	}
	if apperrors.GetCode(err) == apperrors.CodeStorageNotFound {
		// Ledger records store slash-canonical relative paths; normalize
		// the fallback the same way so "./sub/../f.txt" still matches.
		return filepath.ToSlash(filepath.Clean(path)), nil
	}
	return "", err
}

func (c *Client) sendBackupError(reqType MessageType, reqID string, err error) {
	code, message := apperrors.ToCodeAndMessage(err)
	log.Printf("server: %s failed: %v", reqType, err)
	c.sendResult(NewResultMessage(reqType, reqID, BackupResultPayload{
		OK:      false,
		Code:    code,
		Message: message,
	}))
}

// recordBackupAudit writes an audit entry for a restore or commit outcome.
// Audit failures are logged and never fail the operation.
func (c *Client) recordBackupAudit(operation, path string, rec *backup.Record, opErr error) {
	c.server.mu.RLock()
	audit := c.server.audit
	c.server.mu.RUnlock()
	if audit == nil {
		return
	}

	entry := &storage.EditAuditEntry{
		ID:        uuid.NewString(),
		Operation: operation,
		Path:      path,
		Status:    "success",
		At:        time.Now(),
	}
	if info, err := c.server.guard.Info(); err == nil {
		entry.Workspace = info.Root
	}
	if rec != nil {
		entry.Path = rec.File
		entry.BackupTimestamp = rec.Timestamp
	}
	if opErr != nil {
		entry.Status = "error"
		entry.Code, entry.Message = apperrors.ToCodeAndMessage(opErr)
	}

	if err := audit.SaveEditAudit(entry); err != nil {
		log.Printf("server: failed to record audit entry: %v", err)
	}
}
