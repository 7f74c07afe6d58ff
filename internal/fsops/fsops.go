// Package fsops provides the read-only file operations: directory listing
// and head/tail/range reads. Everything goes through workspace resolution
// first and nothing here mutates a file.
package fsops

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/safedit/host/internal/backup"
	apperrors "github.com/safedit/host/internal/errors"
	"github.com/safedit/host/internal/workspace"
)

// Entry is one directory listing row.
type Entry struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"` // workspace-relative
	IsDir      bool      `json:"is_dir"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Ops performs read-only operations inside one guard's workspace.
type Ops struct {
	guard *workspace.Guard
}

// New creates an Ops over the guard.
func New(g *workspace.Guard) *Ops {
	return &Ops{guard: g}
}

// List returns the entries of one directory, directories first, names
// sorted within each group. The snapshot area is not listed.
func (o *Ops) List(path string) ([]Entry, error) {
	rp, err := o.guard.Resolve(path)
	if err != nil {
		return nil, err
	}

	st, err := os.Stat(rp.Abs())
	if err != nil {
		return nil, apperrors.ReadFailed(rp.Rel(), err)
	}
	if !st.IsDir() {
		return nil, apperrors.InvalidField(fmt.Sprintf("path %q is not a directory", rp.Rel()))
	}

	dirEntries, err := os.ReadDir(rp.Abs())
	if err != nil {
		return nil, apperrors.ReadFailed(rp.Rel(), err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if rp.Rel() == "." && de.Name() == backup.DirName {
			continue
		}
		entries = append(entries, makeEntry(rp.Rel(), de))
	}
	sortEntries(entries)
	return entries, nil
}

// ListRecursive walks the tree below path, skipping the snapshot area.
func (o *Ops) ListRecursive(path string) ([]Entry, error) {
	rp, err := o.guard.Resolve(path)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	err = filepath.WalkDir(rp.Abs(), func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == rp.Abs() {
			return nil
		}
		rel, err := filepath.Rel(rp.Abs(), p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() && d.Name() == backup.DirName {
			return filepath.SkipDir
		}
		if rp.Rel() != "." {
			rel = rp.Rel() + "/" + rel
		}

		e := Entry{Name: d.Name(), Path: rel, IsDir: d.IsDir()}
		if info, err := d.Info(); err == nil {
			if !d.IsDir() {
				e.SizeBytes = info.Size()
			}
			e.ModifiedAt = info.ModTime()
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, apperrors.ReadFailed(rp.Rel(), err)
	}
	return entries, nil
}

// Head returns the first n lines of a file.
func (o *Ops) Head(path string, n int) ([]string, error) {
	lines, err := o.readLines(path)
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, apperrors.InvalidField(fmt.Sprintf("count must be at least 1, got %d", n))
	}
	if n > len(lines) {
		n = len(lines)
	}
	return lines[:n], nil
}

// Tail returns the last n lines of a file.
func (o *Ops) Tail(path string, n int) ([]string, error) {
	lines, err := o.readLines(path)
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, apperrors.InvalidField(fmt.Sprintf("count must be at least 1, got %d", n))
	}
	if n > len(lines) {
		n = len(lines)
	}
	return lines[len(lines)-n:], nil
}

// Lines returns the 1-based inclusive range [start, end] of a file's lines.
// Both bounds must lie within the file and start must not exceed end.
func (o *Ops) Lines(path string, start, end int) ([]string, error) {
	if start < 1 {
		return nil, apperrors.InvalidField(fmt.Sprintf("start_line must be at least 1, got %d", start))
	}
	if end < start {
		return nil, apperrors.InvalidField(fmt.Sprintf("start_line %d must not exceed end_line %d", start, end))
	}

	lines, err := o.readLines(path)
	if err != nil {
		return nil, err
	}
	if start > len(lines) || end > len(lines) {
		return nil, apperrors.SpanOutOfRange(start, end, len(lines))
	}
	return lines[start-1 : end], nil
}

// readLines loads a file as bare lines.
func (o *Ops) readLines(path string) ([]string, error) {
	rp, err := o.guard.Resolve(path)
	if err != nil {
		return nil, err
	}

	st, err := os.Stat(rp.Abs())
	if err != nil {
		return nil, apperrors.ReadFailed(rp.Rel(), err)
	}
	if st.IsDir() {
		return nil, apperrors.InvalidField(fmt.Sprintf("path %q is a directory", rp.Rel()))
	}

	data, err := os.ReadFile(rp.Abs())
	if err != nil {
		return nil, apperrors.ReadFailed(rp.Rel(), err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n"), nil
}

// makeEntry builds a listing row from a directory entry.
func makeEntry(parentRel string, de fs.DirEntry) Entry {
	e := Entry{Name: de.Name(), IsDir: de.IsDir()}
	if parentRel == "." {
		e.Path = de.Name()
	} else {
		e.Path = parentRel + "/" + de.Name()
	}
	if info, err := de.Info(); err == nil {
		if !de.IsDir() {
			e.SizeBytes = info.Size()
		}
		e.ModifiedAt = info.ModTime()
	}
	return e
}

// sortEntries orders directories before files, by name within each group.
func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})
}
