// Package server provides the WebSocket server for editor clients.
// It accepts edit, backup, workspace, and file read requests over a single
// connection and replies with per-request result messages.
package server

import (
	"github.com/safedit/host/internal/backup"
	"github.com/safedit/host/internal/fsops"
)

// MessageType identifies the kind of message being sent over WebSocket.
// Each type has a specific payload structure defined below.
type MessageType string

const (
	// MessageTypeEditApply applies an edit to a workspace file.
	// Payload: EditPayload
	MessageTypeEditApply MessageType = "edit.apply"

	// MessageTypeEditPreview computes an edit without writing anything.
	// Payload: EditPayload
	MessageTypeEditPreview MessageType = "edit.preview"

	// MessageTypeEditValidate checks an edit request without reading the file body.
	// Payload: EditPayload
	MessageTypeEditValidate MessageType = "edit.validate"

	// MessageTypeBackupCreate snapshots a file immediately.
	// Payload: BackupPayload
	MessageTypeBackupCreate MessageType = "backup.create"

	// MessageTypeBackupList lists snapshots, optionally filtered by path.
	// Payload: BackupPayload
	MessageTypeBackupList MessageType = "backup.list"

	// MessageTypeBackupRestore restores a snapshot over the live file.
	// Payload: BackupPayload
	MessageTypeBackupRestore MessageType = "backup.restore"

	// MessageTypeBackupCommit annotates the latest snapshot with a message.
	// Payload: BackupPayload
	MessageTypeBackupCommit MessageType = "backup.commit"

	// MessageTypeBackupCompare diffs a snapshot against the live file.
	// Payload: BackupPayload
	MessageTypeBackupCompare MessageType = "backup.compare"

	// MessageTypeWorkspaceSet switches the active workspace by name.
	// Payload: WorkspacePayload
	MessageTypeWorkspaceSet MessageType = "workspace.set"

	// MessageTypeWorkspaceGet reports the active workspace.
	// Payload: empty object
	MessageTypeWorkspaceGet MessageType = "workspace.get"

	// MessageTypeFileList lists a directory inside the workspace.
	// Payload: FilePayload
	MessageTypeFileList MessageType = "file.list"

	// MessageTypeFileHead returns the first N lines of a file.
	// Payload: FilePayload
	MessageTypeFileHead MessageType = "file.head"

	// MessageTypeFileTail returns the last N lines of a file.
	// Payload: FilePayload
	MessageTypeFileTail MessageType = "file.tail"

	// MessageTypeFileLines returns an inclusive 1-based line range.
	// Payload: FilePayload
	MessageTypeFileLines MessageType = "file.lines"

	// MessageTypeWorkspaceStatus notifies all clients that the active
	// workspace changed. Sent after a successful workspace.set.
	// Payload: WorkspaceStatusPayload
	MessageTypeWorkspaceStatus MessageType = "workspace.status"

	// MessageTypeError sends error information outside any request.
	// Payload: ErrorPayload
	MessageTypeError MessageType = "error"

	// MessageTypeHeartbeat is used to keep the connection alive.
	// Payload: none (empty object)
	MessageTypeHeartbeat MessageType = "heartbeat"
)

// ResultType returns the response type for a request type. Every request
// message is answered with exactly one "<type>.result" message carrying the
// same ID.
func ResultType(t MessageType) MessageType {
	return t + ".result"
}

// Message is the envelope for all WebSocket messages.
// Every message has a type and an optional ID for request/response
// correlation; responses echo the request's ID.
type Message struct {
	// Type identifies what kind of message this is.
	Type MessageType `json:"type"`

	// ID is an optional message identifier for correlation.
	// Clients can use this to match responses to requests.
	ID string `json:"id,omitempty"`

	// Payload contains the message-specific data.
	// The structure depends on the Type field.
	Payload interface{} `json:"payload"`
}

// EditPayload carries an edit request. Which fields are required depends on
// the mode; pointer fields distinguish "absent" from "present but empty".
type EditPayload struct {
	// Path is the workspace-relative (or absolute, still boundary-checked)
	// target file.
	Path string `json:"path"`

	// Mode is "overwrite", "unified_diff", "line_edit", or "span_edit".
	Mode string `json:"mode"`

	// Content is the full replacement text (overwrite).
	Content *string `json:"content,omitempty"`

	// DiffText is a unified diff against the current content (unified_diff).
	DiffText string `json:"diff_text,omitempty"`

	// LineNumber is the 1-based line to replace (line_edit).
	LineNumber int `json:"line_number,omitempty"`

	// NewContent is the replacement text (line_edit, span_edit).
	NewContent *string `json:"new_content,omitempty"`

	// StartLine and EndLine bound the inclusive span to replace (span_edit).
	StartLine int `json:"start_line,omitempty"`
	EndLine   int `json:"end_line,omitempty"`

	// CreateBackup snapshots the file before mutating it.
	CreateBackup bool `json:"create_backup,omitempty"`
}

// EditResultPayload answers edit.apply, edit.preview, and edit.validate.
type EditResultPayload struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	Path         string `json:"path,omitempty"`
	Mode         string `json:"mode,omitempty"`
	Changed      bool   `json:"changed"`
	AddedLines   int    `json:"added_lines"`
	DeletedLines int    `json:"deleted_lines"`

	// PreviewDiff is the unified diff of the proposed change. Set for
	// edit.preview; empty for apply and validate.
	PreviewDiff string `json:"preview_diff,omitempty"`

	// BackupTimestamp identifies the pre-edit snapshot when one was taken.
	BackupTimestamp int64 `json:"backup_timestamp,omitempty"`
}

// BackupPayload carries a backup request. Timestamp zero means "latest".
type BackupPayload struct {
	Path      string `json:"path,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`

	// Message is the annotation for backup.commit.
	Message string `json:"message,omitempty"`
}

// BackupResultPayload answers all backup.* requests. Which data fields are
// populated depends on the request type.
type BackupResultPayload struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	// Record is the affected snapshot (create, restore, commit).
	Record *backup.Record `json:"record,omitempty"`

	// Records is the listing for backup.list.
	Records []backup.Record `json:"records,omitempty"`

	// Diff is the comparison output for backup.compare. Empty means the
	// snapshot and the live file are identical.
	Diff string `json:"diff,omitempty"`
}

// WorkspacePayload carries a workspace.set request.
type WorkspacePayload struct {
	Name string `json:"name"`
}

// WorkspaceResultPayload answers workspace.set and workspace.get.
type WorkspaceResultPayload struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	Name   string `json:"name,omitempty"`
	Root   string `json:"root,omitempty"`
	Exists bool   `json:"exists"`
}

// WorkspaceStatusPayload announces the active workspace to all clients.
type WorkspaceStatusPayload struct {
	Name string `json:"name"`
	Root string `json:"root"`
}

// NewWorkspaceStatusMessage creates a workspace change notification.
func NewWorkspaceStatusMessage(name, root string) Message {
	return Message{
		Type: MessageTypeWorkspaceStatus,
		Payload: WorkspaceStatusPayload{
			Name: name,
			Root: root,
		},
	}
}

// FilePayload carries a file.* read request.
type FilePayload struct {
	Path string `json:"path,omitempty"`

	// Recursive asks file.list to walk subdirectories.
	Recursive bool `json:"recursive,omitempty"`

	// Count is the number of lines for file.head and file.tail.
	Count int `json:"count,omitempty"`

	// Start and End bound the inclusive range for file.lines.
	Start int `json:"start,omitempty"`
	End   int `json:"end,omitempty"`
}

// FileResultPayload answers all file.* requests.
type FileResultPayload struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	// Entries is the listing for file.list.
	Entries []fsops.Entry `json:"entries,omitempty"`

	// Lines is the content for file.head, file.tail, and file.lines.
	Lines []string `json:"lines,omitempty"`

	// Start is the 1-based line number of Lines[0] where known (head and
	// range reads), so clients can show correct line numbers.
	Start int `json:"start,omitempty"`
}

// ErrorPayload carries error information to the client.
type ErrorPayload struct {
	// Code is a stable error code for programmatic handling.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

// NewErrorMessage creates an error message to send to clients.
func NewErrorMessage(code, message string) Message {
	return Message{
		Type: MessageTypeError,
		Payload: ErrorPayload{
			Code:    code,
			Message: message,
		},
	}
}

// NewHeartbeatMessage creates a heartbeat message for keep-alive.
func NewHeartbeatMessage() Message {
	return Message{
		Type:    MessageTypeHeartbeat,
		Payload: struct{}{},
	}
}

// NewResultMessage wraps a result payload in a response envelope for the
// given request type, echoing the request ID.
func NewResultMessage(requestType MessageType, requestID string, payload interface{}) Message {
	return Message{
		Type:    ResultType(requestType),
		ID:      requestID,
		Payload: payload,
	}
}
