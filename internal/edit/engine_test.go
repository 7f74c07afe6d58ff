package edit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/safedit/host/internal/backup"
	"github.com/safedit/host/internal/diff"
	apperrors "github.com/safedit/host/internal/errors"
	"github.com/safedit/host/internal/workspace"
)

// newTestEngine returns an Engine over a fresh workspace plus the root path.
func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	g, err := workspace.NewGuard(t.TempDir())
	if err != nil {
		t.Fatalf("NewGuard() error: %v", err)
	}
	_, root, err := g.Set("ws")
	if err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	return NewEngine(g, backup.NewStore(g), 0), root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll() error: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, rel))
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	return string(data)
}

func strptr(s string) *string { return &s }

// TestOverwrite_Existing verifies full replacement of an existing file.
func TestOverwrite_Existing(t *testing.T) {
	e, root := newTestEngine(t)
	writeFile(t, root, "f.txt", "old content\n")

	res, err := e.Apply(Request{Path: "f.txt", Mode: ModeOverwrite, Content: strptr("brand new\n")})
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	if got := readFile(t, root, "f.txt"); got != "brand new\n" {
		t.Errorf("content = %q, want %q", got, "brand new\n")
	}
	if !res.Changed {
		t.Error("Changed = false, want true")
	}
	if res.Path != "f.txt" || res.Mode != ModeOverwrite {
		t.Errorf("result = %+v, want f.txt/overwrite", res)
	}
}

// TestOverwrite_CreatesNewFile verifies overwrite can bring a file into
// existence when its parent directory exists.
func TestOverwrite_CreatesNewFile(t *testing.T) {
	e, root := newTestEngine(t)

	res, err := e.Apply(Request{Path: "new.txt", Mode: ModeOverwrite, Content: strptr("hello\n")})
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if got := readFile(t, root, "new.txt"); got != "hello\n" {
		t.Errorf("content = %q, want %q", got, "hello\n")
	}
	if !res.Changed {
		t.Error("Changed = false, want true")
	}

	st, err := os.Stat(filepath.Join(root, "new.txt"))
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if st.Mode().Perm() != 0644 {
		t.Errorf("new file mode = %o, want 0644", st.Mode().Perm())
	}
}

// TestOverwrite_EmptyContentTruncates verifies present-but-empty content is
// a truncation, not a missing field.
func TestOverwrite_EmptyContentTruncates(t *testing.T) {
	e, root := newTestEngine(t)
	writeFile(t, root, "f.txt", "something\n")

	if _, err := e.Apply(Request{Path: "f.txt", Mode: ModeOverwrite, Content: strptr("")}); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if got := readFile(t, root, "f.txt"); got != "" {
		t.Errorf("content = %q, want empty", got)
	}
}

// TestUnifiedDiff_Apply verifies diff mode patches the live content.
func TestUnifiedDiff_Apply(t *testing.T) {
	e, root := newTestEngine(t)
	base := "alpha\nbeta\ngamma\n"
	target := "alpha\nBETA\ngamma\n"
	writeFile(t, root, "f.txt", base)

	res, err := e.Apply(Request{Path: "f.txt", Mode: ModeUnifiedDiff, DiffText: diff.Generate(base, target, "f.txt")})
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if got := readFile(t, root, "f.txt"); got != target {
		t.Errorf("content = %q, want %q", got, target)
	}
	if res.AddedLines != 1 || res.DeletedLines != 1 {
		t.Errorf("stats = +%d/-%d, want +1/-1", res.AddedLines, res.DeletedLines)
	}
}

// TestUnifiedDiff_StaleConflict verifies a diff whose context no longer
// matches fails with a conflict and leaves the file unchanged.
func TestUnifiedDiff_StaleConflict(t *testing.T) {
	e, root := newTestEngine(t)
	stale := diff.Generate("alpha\nbeta\ngamma\n", "alpha\nBETA\ngamma\n", "f.txt")

	live := "alpha\nbeta CHANGED\ngamma\n"
	writeFile(t, root, "f.txt", live)

	_, err := e.Apply(Request{Path: "f.txt", Mode: ModeUnifiedDiff, DiffText: stale})
	if !apperrors.IsCode(err, apperrors.CodeConflictHunkMismatch) {
		t.Fatalf("Apply() error = %v, want %s", err, apperrors.CodeConflictHunkMismatch)
	}
	if got := readFile(t, root, "f.txt"); got != live {
		t.Errorf("file changed on conflict: %q", got)
	}
}

// TestUnifiedDiff_Malformed verifies an unparseable diff is a validation
// failure before any mutation.
func TestUnifiedDiff_Malformed(t *testing.T) {
	e, root := newTestEngine(t)
	writeFile(t, root, "f.txt", "content\n")

	_, err := e.Apply(Request{Path: "f.txt", Mode: ModeUnifiedDiff, DiffText: "not a diff at all"})
	if !apperrors.IsCode(err, apperrors.CodeValidationMalformedDiff) {
		t.Errorf("Apply() error = %v, want %s", err, apperrors.CodeValidationMalformedDiff)
	}
}

// TestLineEdit verifies single-line replacement.
func TestLineEdit(t *testing.T) {
	e, root := newTestEngine(t)
	writeFile(t, root, "f.txt", "one\ntwo\nthree\n")

	_, err := e.Apply(Request{Path: "f.txt", Mode: ModeLineEdit, LineNumber: 2, NewContent: strptr("TWO")})
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if got := readFile(t, root, "f.txt"); got != "one\nTWO\nthree\n" {
		t.Errorf("content = %q, want %q", got, "one\nTWO\nthree\n")
	}
}

// TestLineEdit_EmptyReplacementKeepsBlankLine verifies that blanking a line
// replaces it with an empty line rather than deleting it. Deleting lines is
// span_edit's job.
func TestLineEdit_EmptyReplacementKeepsBlankLine(t *testing.T) {
	e, root := newTestEngine(t)
	writeFile(t, root, "f.txt", "a\nb\nc\n")

	_, err := e.Apply(Request{Path: "f.txt", Mode: ModeLineEdit, LineNumber: 2, NewContent: strptr("")})
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if got := readFile(t, root, "f.txt"); got != "a\n\nc\n" {
		t.Errorf("content = %q, want %q", got, "a\n\nc\n")
	}
}

// TestSpanEdit_EmptyReplacementDeletesLines pins down the asymmetry with
// line_edit: an empty span replacement removes the span entirely.
func TestSpanEdit_EmptyReplacementDeletesLines(t *testing.T) {
	e, root := newTestEngine(t)
	writeFile(t, root, "f.txt", "a\nb\nc\nd\n")

	_, err := e.Apply(Request{
		Path: "f.txt", Mode: ModeSpanEdit,
		StartLine: 2, EndLine: 3,
		NewContent: strptr(""),
	})
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if got := readFile(t, root, "f.txt"); got != "a\nd\n" {
		t.Errorf("content = %q, want %q", got, "a\nd\n")
	}
}

// TestLineEdit_OutOfRange targets line 10 of a 5-line file: the edit fails
// with "line out of range" and the file is unchanged.
func TestLineEdit_OutOfRange(t *testing.T) {
	e, root := newTestEngine(t)
	content := "1\n2\n3\n4\n5\n"
	writeFile(t, root, "f.txt", content)

	_, err := e.Apply(Request{Path: "f.txt", Mode: ModeLineEdit, LineNumber: 10, NewContent: strptr("X")})
	if !apperrors.IsCode(err, apperrors.CodeValidationLineRange) {
		t.Fatalf("Apply() error = %v, want %s", err, apperrors.CodeValidationLineRange)
	}
	if !strings.Contains(apperrors.GetMessage(err), "out of range") {
		t.Errorf("message = %q, want line out of range", apperrors.GetMessage(err))
	}
	if got := readFile(t, root, "f.txt"); got != content {
		t.Errorf("file changed on failed edit: %q", got)
	}
}

// TestSpanEdit_GrowingReplacement starts from a 5-line file: replacing span
// [2,3] with three lines yields 6 lines with the tail intact.
func TestSpanEdit_GrowingReplacement(t *testing.T) {
	e, root := newTestEngine(t)
	writeFile(t, root, "f.txt", "l1\nl2\nl3\nl4\nl5\n")

	_, err := e.Apply(Request{
		Path: "f.txt", Mode: ModeSpanEdit,
		StartLine: 2, EndLine: 3, NewContent: strptr("X\nY\nZ"),
	})
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	want := "l1\nX\nY\nZ\nl4\nl5\n"
	if got := readFile(t, root, "f.txt"); got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}

// TestSpanEdit_Shrinking verifies a span collapsing to fewer lines.
func TestSpanEdit_Shrinking(t *testing.T) {
	e, root := newTestEngine(t)
	writeFile(t, root, "f.txt", "a\nb\nc\nd\n")

	_, err := e.Apply(Request{
		Path: "f.txt", Mode: ModeSpanEdit,
		StartLine: 1, EndLine: 3, NewContent: strptr("ABC"),
	})
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if got := readFile(t, root, "f.txt"); got != "ABC\nd\n" {
		t.Errorf("content = %q, want %q", got, "ABC\nd\n")
	}
}

// TestSpanEdit_InvalidRanges covers start>end and out-of-file bounds.
func TestSpanEdit_InvalidRanges(t *testing.T) {
	e, root := newTestEngine(t)
	content := "a\nb\nc\n"
	writeFile(t, root, "f.txt", content)

	tests := []struct {
		name       string
		start, end int
	}{
		{"start after end", 3, 2},
		{"start past file", 7, 9},
		{"end past file", 2, 9},
		{"zero start", 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Apply(Request{
				Path: "f.txt", Mode: ModeSpanEdit,
				StartLine: tt.start, EndLine: tt.end, NewContent: strptr("X"),
			})
			if apperrors.GetCode(err) != apperrors.CodeValidationLineRange &&
				apperrors.GetCode(err) != apperrors.CodeValidationInvalidField {
				t.Errorf("Apply() error = %v, want a validation error", err)
			}
		})
	}

	if got := readFile(t, root, "f.txt"); got != content {
		t.Errorf("file changed on failed edits: %q", got)
	}
}

// TestValidate_RequiredFields covers mode-specific field validation without
// touching disk.
func TestValidate_RequiredFields(t *testing.T) {
	e, root := newTestEngine(t)
	writeFile(t, root, "f.txt", "x\n")

	tests := []struct {
		name string
		req  Request
	}{
		{"missing path", Request{Mode: ModeOverwrite, Content: strptr("x")}},
		{"unknown mode", Request{Path: "f.txt", Mode: "rewrite"}},
		{"overwrite without content", Request{Path: "f.txt", Mode: ModeOverwrite}},
		{"diff without text", Request{Path: "f.txt", Mode: ModeUnifiedDiff}},
		{"line_edit without new_content", Request{Path: "f.txt", Mode: ModeLineEdit, LineNumber: 1}},
		{"line_edit zero line", Request{Path: "f.txt", Mode: ModeLineEdit, LineNumber: 0, NewContent: strptr("x")}},
		{"span_edit without new_content", Request{Path: "f.txt", Mode: ModeSpanEdit, StartLine: 1, EndLine: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Validate(tt.req)
			code := apperrors.GetCode(err)
			if code != apperrors.CodeValidationMissingField && code != apperrors.CodeValidationInvalidField {
				t.Errorf("Validate() error = %v, want a validation error", err)
			}
		})
	}
}

// TestValidate_PathEscape verifies validation resolves the path.
func TestValidate_PathEscape(t *testing.T) {
	e, _ := newTestEngine(t)

	err := e.Validate(Request{Path: "../escape.txt", Mode: ModeOverwrite, Content: strptr("x")})
	if !apperrors.IsCode(err, apperrors.CodeWorkspaceEscape) {
		t.Errorf("Validate() error = %v, want %s", err, apperrors.CodeWorkspaceEscape)
	}
}

// TestBackupPrecondition verifies the snapshot is taken before the mutation
// and reported in the result.
func TestBackupPrecondition(t *testing.T) {
	e, root := newTestEngine(t)
	writeFile(t, root, "f.txt", "original\n")

	res, err := e.Apply(Request{
		Path: "f.txt", Mode: ModeOverwrite,
		Content: strptr("replaced\n"), CreateBackup: true,
	})
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if res.Backup == nil {
		t.Fatal("Backup record missing from result")
	}
	if res.Backup.File != "f.txt" {
		t.Errorf("Backup.File = %q, want f.txt", res.Backup.File)
	}

	// The snapshot holds the pre-edit bytes.
	snapDir := filepath.Join(root, backup.DirName)
	entries, err := os.ReadDir(snapDir)
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	var snapContent string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".snap") {
			data, err := os.ReadFile(filepath.Join(snapDir, entry.Name()))
			if err != nil {
				t.Fatalf("ReadFile() error: %v", err)
			}
			snapContent = string(data)
		}
	}
	if snapContent != "original\n" {
		t.Errorf("snapshot = %q, want pre-edit bytes", snapContent)
	}
}

// TestBackup_SkippedForNewFile verifies no snapshot is attempted when the
// target does not exist yet.
func TestBackup_SkippedForNewFile(t *testing.T) {
	e, _ := newTestEngine(t)

	res, err := e.Apply(Request{
		Path: "new.txt", Mode: ModeOverwrite,
		Content: strptr("fresh\n"), CreateBackup: true,
	})
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if res.Backup != nil {
		t.Errorf("Backup = %+v, want nil for a new file", res.Backup)
	}
}

// TestPreview_Idempotent verifies repeated previews return identical output
// and never touch the file.
func TestPreview_Idempotent(t *testing.T) {
	e, root := newTestEngine(t)
	content := "a\nb\nc\n"
	writeFile(t, root, "f.txt", content)

	req := Request{Path: "f.txt", Mode: ModeLineEdit, LineNumber: 2, NewContent: strptr("B")}

	first, err := e.Preview(req)
	if err != nil {
		t.Fatalf("Preview() error: %v", err)
	}
	if first.PreviewDiff == "" {
		t.Error("PreviewDiff should describe the pending change")
	}
	if !first.Changed {
		t.Error("Changed = false, want true")
	}

	for i := 0; i < 3; i++ {
		again, err := e.Preview(req)
		if err != nil {
			t.Fatalf("Preview() #%d error: %v", i, err)
		}
		if *again != *first {
			t.Errorf("Preview() #%d = %+v, want %+v", i, again, first)
		}
	}

	if got := readFile(t, root, "f.txt"); got != content {
		t.Errorf("preview mutated the file: %q", got)
	}
}

// TestPreview_NeverBacksUp verifies preview takes no snapshot even when the
// request asks for one.
func TestPreview_NeverBacksUp(t *testing.T) {
	e, root := newTestEngine(t)
	writeFile(t, root, "f.txt", "x\n")

	_, err := e.Preview(Request{
		Path: "f.txt", Mode: ModeOverwrite,
		Content: strptr("y\n"), CreateBackup: true,
	})
	if err != nil {
		t.Fatalf("Preview() error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, backup.DirName)); err == nil {
		entries, _ := os.ReadDir(filepath.Join(root, backup.DirName))
		for _, entry := range entries {
			if strings.HasSuffix(entry.Name(), ".snap") {
				t.Error("preview created a snapshot")
			}
		}
	}
}

// TestApply_Unchanged verifies a no-op edit reports Changed=false.
func TestApply_Unchanged(t *testing.T) {
	e, root := newTestEngine(t)
	writeFile(t, root, "f.txt", "same\n")

	res, err := e.Apply(Request{Path: "f.txt", Mode: ModeOverwrite, Content: strptr("same\n")})
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if res.Changed {
		t.Error("Changed = true, want false")
	}
	if res.PreviewDiff != "" {
		t.Errorf("PreviewDiff = %q, want empty", res.PreviewDiff)
	}
}

// TestApply_PreservesMode verifies the commit keeps the file's permission
// bits.
func TestApply_PreservesMode(t *testing.T) {
	e, root := newTestEngine(t)
	path := filepath.Join(root, "script.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho hi\n"), 0755); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	_, err := e.Apply(Request{Path: "script.sh", Mode: ModeLineEdit, LineNumber: 2, NewContent: strptr("echo bye")})
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if st.Mode().Perm() != 0755 {
		t.Errorf("mode = %o, want 0755", st.Mode().Perm())
	}
}

// TestApply_NoLeftoverTempFiles verifies the workspace holds no temp files
// after successful and failed edits alike.
func TestApply_NoLeftoverTempFiles(t *testing.T) {
	e, root := newTestEngine(t)
	writeFile(t, root, "f.txt", "1\n2\n3\n")

	if _, err := e.Apply(Request{Path: "f.txt", Mode: ModeLineEdit, LineNumber: 1, NewContent: strptr("ONE")}); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	_, err := e.Apply(Request{Path: "f.txt", Mode: ModeLineEdit, LineNumber: 99, NewContent: strptr("X")})
	if err == nil {
		t.Fatal("Apply() expected range error")
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".safedit-write-") {
			t.Errorf("leftover temp file %q", entry.Name())
		}
	}
}

// TestApply_SizeCap verifies files above the configured cap are refused.
func TestApply_SizeCap(t *testing.T) {
	g, err := workspace.NewGuard(t.TempDir())
	if err != nil {
		t.Fatalf("NewGuard() error: %v", err)
	}
	_, root, err := g.Set("ws")
	if err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	e := NewEngine(g, backup.NewStore(g), 8)
	writeFile(t, root, "big.txt", "0123456789ABCDEF\n")

	_, err = e.Apply(Request{Path: "big.txt", Mode: ModeOverwrite, Content: strptr("tiny\n")})
	if !apperrors.IsCode(err, apperrors.CodeValidationInvalidField) {
		t.Errorf("Apply() error = %v, want %s", err, apperrors.CodeValidationInvalidField)
	}
}

// TestConcurrentEdits_SamePath verifies racing edits to one path all land
// intact: every final state is one of the requested contents, never an
// interleaving.
func TestConcurrentEdits_SamePath(t *testing.T) {
	e, root := newTestEngine(t)
	writeFile(t, root, "f.txt", "start\n")

	const workers = 8
	done := make(chan error, workers)
	for i := 0; i < workers; i++ {
		content := strings.Repeat("x", i+1) + "\n"
		go func(c string) {
			_, err := e.Apply(Request{Path: "f.txt", Mode: ModeOverwrite, Content: &c})
			done <- err
		}(content)
	}
	for i := 0; i < workers; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent Apply() error: %v", err)
		}
	}

	got := readFile(t, root, "f.txt")
	if !strings.HasSuffix(got, "\n") || strings.Trim(strings.TrimSuffix(got, "\n"), "x") != "" {
		t.Errorf("final content %q is not one of the requested writes", got)
	}
}
