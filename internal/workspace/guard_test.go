package workspace

import (
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/safedit/host/internal/errors"
)

// newTestGuard returns a Guard rooted in a temp base dir with an active
// workspace named "ws", plus the workspace root path.
func newTestGuard(t *testing.T) (*Guard, string) {
	t.Helper()
	g, err := NewGuard(t.TempDir())
	if err != nil {
		t.Fatalf("NewGuard() error: %v", err)
	}
	_, root, err := g.Set("ws")
	if err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	return g, root
}

// writeFile creates a file with content under dir, creating parents as needed.
func writeFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll() error: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

// TestSet_CreatesAndSwitches verifies Set creates the named directory and
// reports previous and new roots.
func TestSet_CreatesAndSwitches(t *testing.T) {
	base := t.TempDir()
	g, err := NewGuard(base)
	if err != nil {
		t.Fatalf("NewGuard() error: %v", err)
	}

	prev, next, err := g.Set("alpha")
	if err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if prev != "" {
		t.Errorf("prev = %q, want empty for first Set", prev)
	}
	if next != filepath.Join(base, "alpha") {
		t.Errorf("next = %q, want %q", next, filepath.Join(base, "alpha"))
	}

	st, err := os.Stat(next)
	if err != nil || !st.IsDir() {
		t.Fatalf("workspace dir not created: %v", err)
	}

	prev, next2, err := g.Set("beta")
	if err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if prev != next {
		t.Errorf("prev = %q, want %q", prev, next)
	}
	if next2 != filepath.Join(base, "beta") {
		t.Errorf("next = %q, want %q", next2, filepath.Join(base, "beta"))
	}
}

// TestSet_SanitizesName verifies workspace names are reduced to their final
// path element so separators cannot move the root around.
func TestSet_SanitizesName(t *testing.T) {
	base := t.TempDir()
	g, err := NewGuard(base)
	if err != nil {
		t.Fatalf("NewGuard() error: %v", err)
	}

	_, next, err := g.Set("../outside/evil")
	if err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if next != filepath.Join(base, "evil") {
		t.Errorf("next = %q, want %q", next, filepath.Join(base, "evil"))
	}
}

// TestSet_RejectsEmptyName verifies names that reduce to nothing fail.
func TestSet_RejectsEmptyName(t *testing.T) {
	g, err := NewGuard(t.TempDir())
	if err != nil {
		t.Fatalf("NewGuard() error: %v", err)
	}

	for _, name := range []string{"", ".", ".."} {
		if _, _, err := g.Set(name); !apperrors.IsCode(err, apperrors.CodeValidationInvalidField) {
			t.Errorf("Set(%q) error = %v, want %s", name, err, apperrors.CodeValidationInvalidField)
		}
	}
}

// TestLazyDefault verifies that resolution with no workspace set falls back
// to the "default" workspace, creating it on demand.
func TestLazyDefault(t *testing.T) {
	base := t.TempDir()
	g, err := NewGuard(base)
	if err != nil {
		t.Fatalf("NewGuard() error: %v", err)
	}

	info, err := g.Info()
	if err != nil {
		t.Fatalf("Info() error: %v", err)
	}
	if info.Root != filepath.Join(base, "default") {
		t.Errorf("Root = %q, want %q", info.Root, filepath.Join(base, "default"))
	}
	if !info.Exists || !info.IsDir {
		t.Errorf("Info = %+v, want existing directory", info)
	}
}

// TestRemovedRoot verifies an externally removed root reports a
// configuration error rather than silently recreating it.
func TestRemovedRoot(t *testing.T) {
	g, root := newTestGuard(t)

	if err := os.RemoveAll(root); err != nil {
		t.Fatalf("RemoveAll() error: %v", err)
	}

	_, err := g.Resolve("anything.txt")
	if !apperrors.IsCode(err, apperrors.CodeWorkspaceMissing) {
		t.Errorf("Resolve() error = %v, want %s", err, apperrors.CodeWorkspaceMissing)
	}
}

// TestResolve_Containment covers traversal inputs rejected and genuine
// inside paths accepted.
func TestResolve_Containment(t *testing.T) {
	g, root := newTestGuard(t)
	writeFile(t, root, "sub/inner.txt", "content\n")
	writeFile(t, root, "top.txt", "top\n")

	tests := []struct {
		name     string
		path     string
		wantRel  string
		wantCode string
	}{
		{"top level file", "top.txt", "top.txt", ""},
		{"nested file", "sub/inner.txt", "sub/inner.txt", ""},
		{"dot is the root", ".", ".", ""},
		{"redundant segments", "sub/../top.txt", "top.txt", ""},
		{"parent escape", "../top.txt", "", apperrors.CodeWorkspaceEscape},
		{"deep parent escape", "../../etc/passwd", "", apperrors.CodeWorkspaceEscape},
		{"missing file", "nope.txt", "", apperrors.CodeStorageNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rp, err := g.Resolve(tt.path)
			if tt.wantCode != "" {
				if !apperrors.IsCode(err, tt.wantCode) {
					t.Fatalf("Resolve(%q) error = %v, want %s", tt.path, err, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) error: %v", tt.path, err)
			}
			if rp.Rel() != tt.wantRel {
				t.Errorf("Rel() = %q, want %q", rp.Rel(), tt.wantRel)
			}
			if !filepath.IsAbs(rp.Abs()) {
				t.Errorf("Abs() = %q, want absolute path", rp.Abs())
			}
		})
	}
}

// TestResolve_AbsolutePaths verifies absolute paths are accepted only when
// they already lie inside the root.
func TestResolve_AbsolutePaths(t *testing.T) {
	g, root := newTestGuard(t)
	inside := writeFile(t, root, "in.txt", "x\n")
	outside := writeFile(t, t.TempDir(), "out.txt", "y\n")

	rp, err := g.Resolve(inside)
	if err != nil {
		t.Fatalf("Resolve(inside abs) error: %v", err)
	}
	if rp.Rel() != "in.txt" {
		t.Errorf("Rel() = %q, want %q", rp.Rel(), "in.txt")
	}

	if _, err := g.Resolve(outside); !apperrors.IsCode(err, apperrors.CodeWorkspaceEscape) {
		t.Errorf("Resolve(outside abs) error = %v, want %s", err, apperrors.CodeWorkspaceEscape)
	}
}

// TestResolve_SymlinkEscape verifies a symlink pointing outside the root is
// rejected even though its raw path sits inside.
func TestResolve_SymlinkEscape(t *testing.T) {
	g, root := newTestGuard(t)
	target := writeFile(t, t.TempDir(), "secret.txt", "secret\n")

	link := filepath.Join(root, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	if _, err := g.Resolve("link.txt"); !apperrors.IsCode(err, apperrors.CodeWorkspaceEscape) {
		t.Errorf("Resolve(symlink) error = %v, want %s", err, apperrors.CodeWorkspaceEscape)
	}
}

// TestResolve_SymlinkInside verifies a symlink staying inside the root resolves.
func TestResolve_SymlinkInside(t *testing.T) {
	g, root := newTestGuard(t)
	writeFile(t, root, "real.txt", "real\n")

	link := filepath.Join(root, "alias.txt")
	if err := os.Symlink(filepath.Join(root, "real.txt"), link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	rp, err := g.Resolve("alias.txt")
	if err != nil {
		t.Fatalf("Resolve(alias) error: %v", err)
	}
	if rp.Rel() != "real.txt" {
		t.Errorf("Rel() = %q, want %q (resolved through the link)", rp.Rel(), "real.txt")
	}
}

// TestResolveForWrite_NewFile verifies a not-yet-existing target resolves
// through its parent directory.
func TestResolveForWrite_NewFile(t *testing.T) {
	g, root := newTestGuard(t)
	writeFile(t, root, "sub/existing.txt", "x\n")

	rp, err := g.ResolveForWrite("sub/new.txt")
	if err != nil {
		t.Fatalf("ResolveForWrite() error: %v", err)
	}
	if rp.Rel() != "sub/new.txt" {
		t.Errorf("Rel() = %q, want %q", rp.Rel(), "sub/new.txt")
	}
	if _, err := os.Stat(rp.Abs()); !os.IsNotExist(err) {
		t.Errorf("target should not exist yet, stat err = %v", err)
	}
}

// TestResolveForWrite_MissingParent verifies a target whose parent directory
// does not exist fails with not found.
func TestResolveForWrite_MissingParent(t *testing.T) {
	g, _ := newTestGuard(t)

	_, err := g.ResolveForWrite("nodir/new.txt")
	if !apperrors.IsCode(err, apperrors.CodeStorageNotFound) {
		t.Errorf("ResolveForWrite() error = %v, want %s", err, apperrors.CodeStorageNotFound)
	}
}

// TestResolveForWrite_ParentEscape verifies a new file under an escaping
// parent path is rejected.
func TestResolveForWrite_ParentEscape(t *testing.T) {
	g, _ := newTestGuard(t)

	_, err := g.ResolveForWrite("../new.txt")
	if !apperrors.IsCode(err, apperrors.CodeWorkspaceEscape) {
		t.Errorf("ResolveForWrite() error = %v, want %s", err, apperrors.CodeWorkspaceEscape)
	}
}

// TestResolveForWrite_ExistingFile verifies existing targets get the full
// symlink-resolved check.
func TestResolveForWrite_ExistingFile(t *testing.T) {
	g, root := newTestGuard(t)
	writeFile(t, root, "have.txt", "x\n")

	rp, err := g.ResolveForWrite("have.txt")
	if err != nil {
		t.Fatalf("ResolveForWrite() error: %v", err)
	}
	if rp.Rel() != "have.txt" {
		t.Errorf("Rel() = %q, want %q", rp.Rel(), "have.txt")
	}
}

// TestSetRoot verifies activating a workspace by absolute path.
func TestSetRoot(t *testing.T) {
	g, _ := newTestGuard(t)
	dir := filepath.Join(t.TempDir(), "explicit")

	_, next, err := g.SetRoot(dir)
	if err != nil {
		t.Fatalf("SetRoot() error: %v", err)
	}
	if next != dir {
		t.Errorf("next = %q, want %q", next, dir)
	}

	if _, _, err := g.SetRoot("relative/path"); !apperrors.IsCode(err, apperrors.CodeValidationInvalidField) {
		t.Errorf("SetRoot(relative) error = %v, want %s", err, apperrors.CodeValidationInvalidField)
	}
}
