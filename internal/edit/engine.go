// Package edit turns a requested mutation into a durable, all-or-nothing
// change to a workspace file. Each request moves through validation, an
// optional backup snapshot, an in-memory transform, and an atomic
// temp-write-then-rename commit; a failure at any stage leaves the live file
// exactly as it was.
package edit

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/safedit/host/internal/backup"
	"github.com/safedit/host/internal/diff"
	apperrors "github.com/safedit/host/internal/errors"
	"github.com/safedit/host/internal/workspace"
)

// Mode selects how the new content is computed.
type Mode string

const (
	ModeOverwrite   Mode = "overwrite"
	ModeUnifiedDiff Mode = "unified_diff"
	ModeLineEdit    Mode = "line_edit"
	ModeSpanEdit    Mode = "span_edit"
)

// Request describes one edit. Pointer fields distinguish "absent" from
// "present but empty": an overwrite with empty content truncates the file,
// which is not the same as forgetting the field.
type Request struct {
	Path string
	Mode Mode

	// Content is the full replacement text (overwrite).
	Content *string

	// DiffText is a unified diff against the current content (unified_diff).
	DiffText string

	// LineNumber is the 1-based line to replace (line_edit).
	LineNumber int

	// NewContent is the replacement text (line_edit, span_edit). May span a
	// different number of lines than it replaces.
	NewContent *string

	// StartLine and EndLine bound the inclusive span to replace (span_edit).
	StartLine int
	EndLine   int

	// CreateBackup snapshots the file before mutating it. The snapshot is a
	// precondition: if it fails, the edit never starts.
	CreateBackup bool
}

// Result summarizes a completed or previewed edit.
type Result struct {
	Path         string // workspace-relative
	Mode         Mode
	Changed      bool
	AddedLines   int
	DeletedLines int
	PreviewDiff  string
	Backup       *backup.Record // set when a snapshot was taken
}

// Engine orchestrates edits against one workspace.
//
// Concurrent requests for the same resolved path are serialized by a
// per-path mutex held from backup through commit; requests for distinct
// paths proceed in parallel.
type Engine struct {
	guard        *workspace.Guard
	backups      *backup.Store
	maxFileBytes int64
	locks        sync.Map // resolved abs path -> *sync.Mutex
}

// NewEngine creates an Engine. maxFileBytes caps how large a file the
// engine will load; zero or negative disables the cap.
func NewEngine(g *workspace.Guard, store *backup.Store, maxFileBytes int64) *Engine {
	return &Engine{guard: g, backups: store, maxFileBytes: maxFileBytes}
}

// lockFor returns the mutex guarding one resolved path.
func (e *Engine) lockFor(absPath string) *sync.Mutex {
	v, _ := e.locks.LoadOrStore(absPath, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Validate checks the request's fields and path without reading any file
// content. A nil return means the request would at least start.
func (e *Engine) Validate(req Request) error {
	if err := validateFields(req); err != nil {
		return err
	}
	_, err := e.resolve(req)
	return err
}

// Apply runs the full edit: validate, back up, transform, commit.
func (e *Engine) Apply(req Request) (*Result, error) {
	if err := validateFields(req); err != nil {
		return nil, err
	}
	rp, err := e.resolve(req)
	if err != nil {
		return nil, err
	}

	mu := e.lockFor(rp.Abs())
	mu.Lock()
	defer mu.Unlock()

	current, exists, perm, err := e.load(rp)
	if err != nil {
		return nil, err
	}

	var rec *backup.Record
	if req.CreateBackup && exists {
		rec, err = e.backups.Create(rp)
		if err != nil {
			return nil, err
		}
	}

	newContent, err := transform(req, current)
	if err != nil {
		return nil, err
	}

	res := summarize(req, rp, current, newContent)
	res.Backup = rec
	if !res.Changed && exists {
		// Nothing to commit; an overwrite creating a new empty file still
		// falls through so the file comes into existence.
		return res, nil
	}

	if err := backup.AtomicWriteFile(rp.Abs(), []byte(newContent), perm); err != nil {
		return nil, commitError(rp.Rel(), err)
	}
	return res, nil
}

// Preview performs everything Apply does except the backup and the commit;
// it never mutates the file, however often it is repeated.
func (e *Engine) Preview(req Request) (*Result, error) {
	if err := validateFields(req); err != nil {
		return nil, err
	}
	rp, err := e.resolve(req)
	if err != nil {
		return nil, err
	}

	current, _, _, err := e.load(rp)
	if err != nil {
		return nil, err
	}

	newContent, err := transform(req, current)
	if err != nil {
		return nil, err
	}
	return summarize(req, rp, current, newContent), nil
}

// resolve maps the request path into the workspace. Overwrite may create a
// new file, so it resolves through the parent boundary; every other mode
// requires an existing target.
func (e *Engine) resolve(req Request) (workspace.ResolvedPath, error) {
	if req.Mode == ModeOverwrite {
		return e.guard.ResolveForWrite(req.Path)
	}
	return e.guard.Resolve(req.Path)
}

// load reads the current content, reporting whether the file exists and its
// permission bits (0644 for files not yet created).
func (e *Engine) load(rp workspace.ResolvedPath) (content string, exists bool, perm os.FileMode, err error) {
	perm = 0644
	st, err := os.Stat(rp.Abs())
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, perm, nil
		}
		return "", false, 0, apperrors.ReadFailed(rp.Rel(), err)
	}
	if st.IsDir() {
		return "", false, 0, apperrors.InvalidField(fmt.Sprintf("path %q is a directory", rp.Rel()))
	}
	if e.maxFileBytes > 0 && st.Size() > e.maxFileBytes {
		return "", false, 0, apperrors.InvalidField(
			fmt.Sprintf("file %s is %d bytes, larger than the %d byte limit", rp.Rel(), st.Size(), e.maxFileBytes))
	}

	data, err := os.ReadFile(rp.Abs())
	if err != nil {
		return "", false, 0, apperrors.ReadFailed(rp.Rel(), err)
	}
	return string(data), true, st.Mode(), nil
}

// validateFields checks mode-specific required fields before any disk
// access.
func validateFields(req Request) error {
	if req.Path == "" {
		return apperrors.MissingField("path", string(req.Mode))
	}

	switch req.Mode {
	case ModeOverwrite:
		if req.Content == nil {
			return apperrors.MissingField("content", string(ModeOverwrite))
		}
	case ModeUnifiedDiff:
		if req.DiffText == "" {
			return apperrors.MissingField("diff_text", string(ModeUnifiedDiff))
		}
	case ModeLineEdit:
		if req.LineNumber < 1 {
			return apperrors.InvalidField(fmt.Sprintf("line_number must be at least 1, got %d", req.LineNumber))
		}
		if req.NewContent == nil {
			return apperrors.MissingField("new_content", string(ModeLineEdit))
		}
	case ModeSpanEdit:
		if req.StartLine < 1 {
			return apperrors.InvalidField(fmt.Sprintf("start_line must be at least 1, got %d", req.StartLine))
		}
		if req.EndLine < req.StartLine {
			return apperrors.InvalidField(
				fmt.Sprintf("start_line %d must not exceed end_line %d", req.StartLine, req.EndLine))
		}
		if req.NewContent == nil {
			return apperrors.MissingField("new_content", string(ModeSpanEdit))
		}
	default:
		return apperrors.InvalidField(fmt.Sprintf("unknown edit mode %q", req.Mode))
	}
	return nil
}

// transform computes the new content from the current content, entirely in
// memory. No partial state is ever visible on disk.
func transform(req Request, current string) (string, error) {
	switch req.Mode {
	case ModeOverwrite:
		return *req.Content, nil

	case ModeUnifiedDiff:
		hunks, err := diff.Parse(req.DiffText)
		if err != nil {
			return "", err
		}
		return diff.Apply(current, hunks)

	case ModeLineEdit:
		lines := splitLines(current)
		if req.LineNumber > len(lines) {
			return "", apperrors.LineOutOfRange(req.LineNumber, len(lines))
		}
		// Empty replacement text means one empty line: line_edit always
		// replaces, never deletes.
		replacement := []string{""}
		if *req.NewContent != "" {
			replacement = splitLines(normalize(*req.NewContent))
		}
		out := make([]string, 0, len(lines)-1+len(replacement))
		out = append(out, lines[:req.LineNumber-1]...)
		out = append(out, replacement...)
		out = append(out, lines[req.LineNumber:]...)
		return joinLines(out), nil

	case ModeSpanEdit:
		lines := splitLines(current)
		if req.StartLine > len(lines) || req.EndLine > len(lines) {
			return "", apperrors.SpanOutOfRange(req.StartLine, req.EndLine, len(lines))
		}
		replacement := splitLines(normalize(*req.NewContent))
		out := make([]string, 0, len(lines)-(req.EndLine-req.StartLine+1)+len(replacement))
		out = append(out, lines[:req.StartLine-1]...)
		out = append(out, replacement...)
		out = append(out, lines[req.EndLine:]...)
		return joinLines(out), nil
	}
	return "", apperrors.InvalidField(fmt.Sprintf("unknown edit mode %q", req.Mode))
}

// summarize builds the result record from the before and after texts.
func summarize(req Request, rp workspace.ResolvedPath, current, newContent string) *Result {
	preview := diff.Generate(current, newContent, rp.Rel())
	stats := diff.CalculateStats(preview)
	return &Result{
		Path:         rp.Rel(),
		Mode:         req.Mode,
		Changed:      newContent != current,
		AddedLines:   stats.AddedLines,
		DeletedLines: stats.DeletedLines,
		PreviewDiff:  preview,
	}
}

// commitError classifies a failed atomic write. A rename failure is the one
// step that must surface loudly; everything before it left the target
// untouched.
func commitError(rel string, err error) error {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return apperrors.RenameFailed(rel, err)
	}
	return apperrors.WriteFailed(rel, err)
}

// splitLines splits text into bare lines; empty text has no lines.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// joinLines is the inverse of splitLines, newline-terminated.
func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// normalize guarantees non-empty text ends with a newline so line splicing
// cannot glue two lines together.
func normalize(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
