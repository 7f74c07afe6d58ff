package server

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/safedit/host/internal/edit"
	apperrors "github.com/safedit/host/internal/errors"
	"github.com/safedit/host/internal/storage"
)

// handleEdit processes edit.apply, edit.preview, and edit.validate.
// Every request gets exactly one result message; apply operations are
// additionally recorded in the audit trail.
func (c *Client) handleEdit(reqType MessageType, reqID string, data []byte) {
	var msg struct {
		Type    MessageType `json:"type"`
		ID      string      `json:"id,omitempty"`
		Payload EditPayload `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("server: failed to parse %s payload: %v", reqType, err)
		c.sendResult(NewResultMessage(reqType, reqID, EditResultPayload{
			OK:      false,
			Code:    apperrors.CodeServerInvalidMessage,
			Message: "invalid message format",
		}))
		return
	}

	p := msg.Payload
	req := edit.Request{
		Path:         p.Path,
		Mode:         edit.Mode(p.Mode),
		Content:      p.Content,
		DiffText:     p.DiffText,
		LineNumber:   p.LineNumber,
		NewContent:   p.NewContent,
		StartLine:    p.StartLine,
		EndLine:      p.EndLine,
		CreateBackup: p.CreateBackup,
	}

	var (
		res *edit.Result
		err error
	)
	switch reqType {
	case MessageTypeEditApply:
		// Mutating requests are rate-limited per client.
		if c.editLimiter != nil && !c.editLimiter.Allow() {
			log.Printf("server: edit.apply rate limited")
			c.sendResult(NewResultMessage(reqType, reqID, EditResultPayload{
				OK:      false,
				Code:    apperrors.CodeServerRateLimited,
				Message: "rate limit exceeded",
			}))
			return
		}
		res, err = c.server.engine.Apply(req)
		c.recordEditAudit(req, res, err)
	case MessageTypeEditPreview:
		res, err = c.server.engine.Preview(req)
	case MessageTypeEditValidate:
		err = c.server.engine.Validate(req)
	}

	if err != nil {
		code, message := apperrors.ToCodeAndMessage(err)
		log.Printf("server: %s failed for %s: %v", reqType, p.Path, err)
		c.sendResult(NewResultMessage(reqType, reqID, EditResultPayload{
			OK:      false,
			Code:    code,
			Message: message,
			Path:    p.Path,
			Mode:    p.Mode,
		}))
		return
	}

	result := EditResultPayload{
		OK:   true,
		Path: p.Path,
		Mode: p.Mode,
	}
	if res != nil {
		result.Path = res.Path
		result.Changed = res.Changed
		result.AddedLines = res.AddedLines
		result.DeletedLines = res.DeletedLines
		if reqType == MessageTypeEditPreview {
			result.PreviewDiff = res.PreviewDiff
		}
		if res.Backup != nil {
			result.BackupTimestamp = res.Backup.Timestamp
		}
	}
	c.sendResult(NewResultMessage(reqType, reqID, result))
}

// recordEditAudit writes an audit entry for an edit.apply outcome.
// Audit failures are logged and never fail the edit.
func (c *Client) recordEditAudit(req edit.Request, res *edit.Result, editErr error) {
	c.server.mu.RLock()
	audit := c.server.audit
	c.server.mu.RUnlock()
	if audit == nil {
		return
	}

	entry := &storage.EditAuditEntry{
		ID:        uuid.NewString(),
		Operation: "edit",
		Path:      req.Path,
		Mode:      string(req.Mode),
		Status:    "success",
		At:        time.Now(),
	}
	if info, err := c.server.guard.Info(); err == nil {
		entry.Workspace = info.Root
	}
	if res != nil {
		entry.Path = res.Path
		if res.Backup != nil {
			entry.BackupTimestamp = res.Backup.Timestamp
		}
	}
	if editErr != nil {
		entry.Status = "error"
		entry.Code, entry.Message = apperrors.ToCodeAndMessage(editErr)
	}

	if err := audit.SaveEditAudit(entry); err != nil {
		log.Printf("server: failed to record audit entry: %v", err)
	}
}
