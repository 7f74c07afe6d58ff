// Package workspace confines all file operations to an active workspace root.
// A Guard owns the process-wide active root, switches between named workspaces
// under a base directory, and resolves caller-supplied paths into ResolvedPath
// values that are proven to lie inside the root. Every component that touches
// disk goes through Resolve or ResolveForWrite first; nothing else constructs
// a ResolvedPath.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/safedit/host/internal/config"
	apperrors "github.com/safedit/host/internal/errors"
)

// ResolvedPath is an absolute path guaranteed to lie within the workspace
// root, together with its workspace-relative canonical form. Fields are
// unexported so only this package can create one.
type ResolvedPath struct {
	abs string
	rel string
}

// Abs returns the absolute, symlink-resolved path.
func (rp ResolvedPath) Abs() string { return rp.abs }

// Rel returns the workspace-relative canonical path ("." for the root itself).
func (rp ResolvedPath) Rel() string { return rp.rel }

// Info describes the current workspace root state.
type Info struct {
	Root   string
	Exists bool
	IsDir  bool
}

// Guard tracks the active workspace root and performs boundary-checked path
// resolution. Safe for concurrent use.
type Guard struct {
	mu      sync.RWMutex
	baseDir string
	root    string // empty until a workspace is set or lazily defaulted
}

// NewGuard creates a Guard with the given base directory for named
// workspaces. An empty baseDir falls back to ~/.safedit/workspaces.
func NewGuard(baseDir string) (*Guard, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".safedit", "workspaces")
	}
	return &Guard{baseDir: baseDir}, nil
}

// Set creates <base>/<name> if absent and switches the active root to it.
// The name is reduced to its final path element so a caller cannot smuggle
// separators into the base directory. Returns the previous and new roots;
// the previous root is empty if no workspace was active.
func (g *Guard) Set(name string) (prev, next string, err error) {
	sanitized := filepath.Base(filepath.Clean(name))
	if sanitized == "" || sanitized == "." || sanitized == ".." || sanitized == string(filepath.Separator) {
		return "", "", apperrors.InvalidField(fmt.Sprintf("invalid workspace name %q", name))
	}

	root := filepath.Join(g.baseDir, sanitized)
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", "", apperrors.WriteFailed(root, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	prev = g.root
	g.root = root
	return prev, root, nil
}

// SetRoot switches the active root to an explicit directory, creating it if
// absent. Used when config or flags name a workspace by absolute path.
func (g *Guard) SetRoot(root string) (prev, next string, err error) {
	if !filepath.IsAbs(root) {
		return "", "", apperrors.InvalidField(fmt.Sprintf("workspace root must be absolute, got %q", root))
	}
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", "", apperrors.WriteFailed(root, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	prev = g.root
	g.root = root
	return prev, root, nil
}

// Info reports the active root and whether it still exists as a directory.
// Triggers the lazy default workspace if none was ever set.
func (g *Guard) Info() (Info, error) {
	root, err := g.activeRoot()
	if err != nil {
		return Info{}, err
	}

	info := Info{Root: root}
	st, err := os.Stat(root)
	if err == nil {
		info.Exists = true
		info.IsDir = st.IsDir()
	}
	return info, nil
}

// activeRoot returns the current root, lazily creating and activating the
// default workspace when none was ever set. A root that was set but removed
// externally is a configuration error, not an invitation to recreate it.
func (g *Guard) activeRoot() (string, error) {
	g.mu.RLock()
	root := g.root
	g.mu.RUnlock()

	if root == "" {
		_, next, err := g.Set(config.DefaultWorkspaceName)
		if err != nil {
			return "", err
		}
		return next, nil
	}

	st, err := os.Stat(root)
	if err != nil || !st.IsDir() {
		return "", apperrors.WorkspaceMissing(root)
	}
	return root, nil
}

// Resolve normalizes a caller-supplied path and returns it as a ResolvedPath.
// Relative paths join the active root; absolute paths are accepted only when
// they already lie inside the root. The boundary check is re-derived from the
// symlink-expanded absolute path, never from string prefix matching on the
// raw input, so a symlink pointing outside the root is rejected.
// The target must exist; use ResolveForWrite for files being created.
func (g *Guard) Resolve(path string) (ResolvedPath, error) {
	root, rootResolved, err := g.resolvedRoot()
	if err != nil {
		return ResolvedPath{}, err
	}

	candidate, err := candidatePath(root, path)
	if err != nil {
		return ResolvedPath{}, err
	}

	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		if os.IsNotExist(err) {
			return ResolvedPath{}, apperrors.FileNotFound(path)
		}
		return ResolvedPath{}, apperrors.ReadFailed(path, err)
	}

	rel, ok := containedRel(resolved, rootResolved)
	if !ok {
		return ResolvedPath{}, apperrors.PathEscape(path)
	}
	return ResolvedPath{abs: resolved, rel: rel}, nil
}

// ResolveForWrite resolves a path whose target may not exist yet. The parent
// directory must exist and lie inside the root; the returned ResolvedPath
// names the (possibly not-yet-existing) target inside that resolved parent.
// Existing targets go through the full Resolve check so a symlinked target
// cannot redirect a write outside the root.
func (g *Guard) ResolveForWrite(path string) (ResolvedPath, error) {
	rp, err := g.Resolve(path)
	if err == nil {
		return rp, nil
	}
	if !apperrors.IsCode(err, apperrors.CodeStorageNotFound) {
		return ResolvedPath{}, err
	}

	root, rootResolved, err := g.resolvedRoot()
	if err != nil {
		return ResolvedPath{}, err
	}

	candidate, err := candidatePath(root, path)
	if err != nil {
		return ResolvedPath{}, err
	}

	base := filepath.Base(candidate)
	if base == "." || base == string(filepath.Separator) {
		return ResolvedPath{}, apperrors.InvalidField(fmt.Sprintf("path %q does not name a file", path))
	}

	resolvedParent, err := filepath.EvalSymlinks(filepath.Dir(candidate))
	if err != nil {
		if os.IsNotExist(err) {
			return ResolvedPath{}, apperrors.FileNotFound(path)
		}
		return ResolvedPath{}, apperrors.ReadFailed(path, err)
	}

	relParent, ok := containedRel(resolvedParent, rootResolved)
	if !ok {
		return ResolvedPath{}, apperrors.PathEscape(path)
	}

	st, err := os.Stat(resolvedParent)
	if err != nil {
		return ResolvedPath{}, apperrors.ReadFailed(path, err)
	}
	if !st.IsDir() {
		return ResolvedPath{}, apperrors.InvalidField(fmt.Sprintf("parent of %q is not a directory", path))
	}

	rel := base
	if relParent != "." {
		rel = relParent + "/" + base
	}
	return ResolvedPath{abs: filepath.Join(resolvedParent, base), rel: rel}, nil
}

// resolvedRoot returns the active root and its symlink-expanded form.
func (g *Guard) resolvedRoot() (root, rootResolved string, err error) {
	root, err = g.activeRoot()
	if err != nil {
		return "", "", err
	}
	rootResolved, err = filepath.EvalSymlinks(root)
	if err != nil {
		return "", "", apperrors.WorkspaceMissing(root)
	}
	return root, rootResolved, nil
}

// candidatePath turns a raw request path into a cleaned absolute candidate.
// Relative traversal escapes are rejected up front; absolute paths pass
// through for the symlink-resolved containment check.
func candidatePath(root, path string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}

	cleaned := filepath.Clean(path)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", apperrors.PathEscape(path)
	}
	if cleaned == "." || cleaned == "" {
		return root, nil
	}
	return filepath.Join(root, cleaned), nil
}

// containedRel reports whether resolved lies within rootResolved and, if so,
// returns its root-relative form ("." for the root itself).
func containedRel(resolved, rootResolved string) (string, bool) {
	if resolved == rootResolved {
		return ".", true
	}
	prefix := rootResolved + string(filepath.Separator)
	if !strings.HasPrefix(resolved, prefix) {
		return "", false
	}
	return filepath.ToSlash(strings.TrimPrefix(resolved, prefix)), true
}
