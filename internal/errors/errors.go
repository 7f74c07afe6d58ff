// Package errors provides standardized error codes for the safedit host.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (workspace, validation, conflict, storage, io, server)
//   - error: The specific error type within that domain
//
// These codes are stable and can be used by clients for programmatic error
// handling. Human-readable messages are provided alongside codes.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
// These are stable identifiers that clients can rely on for error handling.
const (
	// Workspace domain - workspace configuration and path containment
	CodeWorkspaceUnset   = "workspace.unset"   // No active workspace configured
	CodeWorkspaceMissing = "workspace.missing" // Active workspace root was removed externally
	CodeWorkspaceEscape  = "workspace.escape"  // Path resolves outside the workspace root

	// Validation domain - malformed requests detected before any mutation
	CodeValidationMissingField  = "validation.missing_field"  // Required payload field absent for the chosen mode
	CodeValidationInvalidField  = "validation.invalid_field"  // Field present but not usable (bad mode, bad type)
	CodeValidationLineRange     = "validation.line_range"     // Line number or span outside the file
	CodeValidationMalformedDiff = "validation.malformed_diff" // Diff text is structurally invalid

	// Conflict domain - a structurally valid diff that no longer matches the file
	CodeConflictHunkMismatch = "conflict.hunk_mismatch" // Hunk context/delete lines do not match current content

	// Storage domain - files and backup records
	CodeStorageNotFound        = "storage.not_found"        // Target file does not exist
	CodeBackupNotFound         = "backup.not_found"         // Path has no backup history
	CodeBackupUnknownTimestamp = "backup.unknown_timestamp" // Timestamp is not in the ledger
	CodeStorageSaveFailed      = "storage.save_failed"      // Audit database write failed

	// IO domain - underlying filesystem failures
	CodeIORead   = "io.read"   // Read failed
	CodeIOWrite  = "io.write"  // Temp-file write or sync failed (original untouched)
	CodeIORename = "io.rename" // Rename over the target failed (the one risky step)

	// Server domain - WebSocket and network errors
	CodeServerInvalidMessage = "server.invalid_message" // Malformed or invalid message
	CodeServerHandlerMissing = "server.handler_missing" // No handler for message type
	CodeServerRateLimited    = "server.rate_limited"    // Too many requests per second

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal server error
)

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "workspace.escape")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// If the error is a CodedError, returns its code.
// Falls back to CodeUnknown for unrecognized errors.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
// If the error is a CodedError, returns its message.
// Otherwise, returns the error's Error() string.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// ToCodeAndMessage extracts both code and message from an error.
// This is the primary function for converting errors to client responses.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// Common error constructors for frequently used error types.

// WorkspaceUnset creates a "workspace.unset" error.
func WorkspaceUnset() *CodedError {
	return New(CodeWorkspaceUnset, "no active workspace configured")
}

// WorkspaceMissing creates a "workspace.missing" error.
// This indicates the active root was removed or replaced by a non-directory
// after being set.
func WorkspaceMissing(root string) *CodedError {
	return New(CodeWorkspaceMissing, fmt.Sprintf("workspace root %s does not exist or is not a directory", root))
}

// PathEscape creates a "workspace.escape" error.
// The path is reported as the caller supplied it, never resolved, so the
// message cannot leak host paths outside the workspace.
func PathEscape(path string) *CodedError {
	return New(CodeWorkspaceEscape, fmt.Sprintf("path %s escapes the workspace boundary", path))
}

// MissingField creates a "validation.missing_field" error.
func MissingField(field, mode string) *CodedError {
	return New(CodeValidationMissingField, fmt.Sprintf("%s is required for %s mode", field, mode))
}

// InvalidField creates a "validation.invalid_field" error.
func InvalidField(reason string) *CodedError {
	return New(CodeValidationInvalidField, reason)
}

// LineOutOfRange creates a "validation.line_range" error for a single line.
func LineOutOfRange(line, lineCount int) *CodedError {
	return New(CodeValidationLineRange,
		fmt.Sprintf("line %d out of range (file has %d lines)", line, lineCount))
}

// SpanOutOfRange creates a "validation.line_range" error for a line span.
func SpanOutOfRange(start, end, lineCount int) *CodedError {
	return New(CodeValidationLineRange,
		fmt.Sprintf("invalid range [%d, %d] (file has %d lines)", start, end, lineCount))
}

// MalformedDiff creates a "validation.malformed_diff" error.
func MalformedDiff(reason string) *CodedError {
	return New(CodeValidationMalformedDiff, fmt.Sprintf("malformed diff: %s", reason))
}

// HunkMismatch creates a "conflict.hunk_mismatch" error.
// This indicates the base text has drifted from what the diff was computed
// against. It identifies the failing hunk and the first mismatching line so
// the caller can regenerate the diff. No mutation has happened when this is
// returned.
func HunkMismatch(hunkIndex, line int, expected, actual string) *CodedError {
	return New(CodeConflictHunkMismatch,
		fmt.Sprintf("hunk %d does not apply at line %d: expected %q, found %q", hunkIndex, line, expected, actual))
}

// FileNotFound creates a "storage.not_found" error.
func FileNotFound(path string) *CodedError {
	return New(CodeStorageNotFound, fmt.Sprintf("file not found: %s", path))
}

// NoBackups creates a "backup.not_found" error.
func NoBackups(path string) *CodedError {
	return New(CodeBackupNotFound, fmt.Sprintf("no backups found for %s", path))
}

// UnknownTimestamp creates a "backup.unknown_timestamp" error.
func UnknownTimestamp(path string, timestamp int64) *CodedError {
	return New(CodeBackupUnknownTimestamp,
		fmt.Sprintf("no backup of %s with timestamp %d", path, timestamp))
}

// ReadFailed creates an "io.read" error.
func ReadFailed(path string, cause error) *CodedError {
	return Wrap(CodeIORead, fmt.Sprintf("failed to read %s", path), cause)
}

// WriteFailed creates an "io.write" error.
// The original file is untouched when this is returned; only the temp file
// was affected.
func WriteFailed(path string, cause error) *CodedError {
	return Wrap(CodeIOWrite, fmt.Sprintf("failed to write %s", path), cause)
}

// RenameFailed creates an "io.rename" error.
// Rename is the single unavoidable risk window of the atomic-commit
// protocol; this error must always surface to the caller.
func RenameFailed(path string, cause error) *CodedError {
	return Wrap(CodeIORename, fmt.Sprintf("failed to replace %s", path), cause)
}

// InvalidMessage creates a "server.invalid_message" error.
func InvalidMessage(reason string) *CodedError {
	return New(CodeServerInvalidMessage, reason)
}

// RateLimited creates a "server.rate_limited" error.
func RateLimited() *CodedError {
	return New(CodeServerRateLimited, "too many requests, slow down")
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}
