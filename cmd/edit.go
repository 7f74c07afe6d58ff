package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/safedit/host/internal/edit"
)

// runEdit implements the "safedit edit" command.
// It applies (or previews) a single edit against the active workspace using
// the same engine the server uses.
func runEdit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Path to config file (default: ~/.safedit/config.toml)")
	workspaceName := fs.String("workspace", "", "Workspace to use (overrides config)")
	file := fs.String("file", "", "Workspace-relative path of the file to edit")
	mode := fs.String("mode", "overwrite", "Edit mode: overwrite, unified_diff, line_edit, span_edit")
	content := fs.String("content", "", "Replacement content (overwrite); use --content-file for larger input")
	contentFile := fs.String("content-file", "", "Read replacement content from this file; '-' reads stdin")
	diffFile := fs.String("diff-file", "", "Read a unified diff from this file; '-' reads stdin")
	line := fs.Int("line", 0, "1-based line number to replace (line_edit)")
	start := fs.Int("start", 0, "1-based first line of the span (span_edit)")
	end := fs.Int("end", 0, "1-based last line of the span, inclusive (span_edit)")
	newContent := fs.String("new-content", "", "Replacement text for line_edit and span_edit")
	doBackup := fs.Bool("backup", true, "Snapshot the file before editing")
	preview := fs.Bool("preview", false, "Compute the edit and print the diff without writing")
	asJSON := fs.Bool("json", false, "Output the result in JSON format")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: safedit edit [options]

Apply an edit to a file in the active workspace. The write is atomic: the
file either has its old content or its new content, never a mix.

Examples:
  safedit edit --file notes.txt --content "hello"
  safedit edit --file main.go --mode unified_diff --diff-file change.patch
  safedit edit --file cfg.ini --mode line_edit --line 3 --new-content "debug = true"
  safedit edit --file doc.md --mode span_edit --start 2 --end 4 --new-content "replaced" --preview

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if *file == "" {
		fmt.Fprintln(stderr, "Error: --file is required")
		return 1
	}

	req := edit.Request{
		Path:         *file,
		Mode:         edit.Mode(*mode),
		LineNumber:   *line,
		StartLine:    *start,
		EndLine:      *end,
		CreateBackup: *doBackup && !*preview,
	}

	switch req.Mode {
	case edit.ModeOverwrite:
		text, err := readInput(*content, *contentFile)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		req.Content = &text
	case edit.ModeUnifiedDiff:
		if *diffFile == "" {
			fmt.Fprintln(stderr, "Error: --diff-file is required for unified_diff")
			return 1
		}
		text, err := readInput("", *diffFile)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		req.DiffText = text
	case edit.ModeLineEdit, edit.ModeSpanEdit:
		req.NewContent = newContent
	}

	env, err := loadEnv(*configPath, *workspaceName)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	var res *edit.Result
	if *preview {
		res, err = env.engine.Preview(req)
	} else {
		res, err = env.engine.Apply(req)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *asJSON {
		out := map[string]interface{}{
			"path":          res.Path,
			"mode":          string(res.Mode),
			"changed":       res.Changed,
			"added_lines":   res.AddedLines,
			"deleted_lines": res.DeletedLines,
		}
		if res.PreviewDiff != "" {
			out["preview_diff"] = res.PreviewDiff
		}
		if res.Backup != nil {
			out["backup_timestamp"] = res.Backup.Timestamp
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		enc.Encode(out)
		return 0
	}

	if *preview {
		if res.PreviewDiff == "" {
			fmt.Fprintln(stdout, "No changes.")
		} else {
			fmt.Fprint(stdout, res.PreviewDiff)
		}
		return 0
	}

	if !res.Changed {
		fmt.Fprintf(stdout, "%s: unchanged\n", res.Path)
		return 0
	}
	fmt.Fprintf(stdout, "%s: +%d -%d\n", res.Path, res.AddedLines, res.DeletedLines)
	if res.Backup != nil {
		fmt.Fprintf(stdout, "Backup: %d\n", res.Backup.Timestamp)
	}
	return 0
}

// readInput returns inline text, or the contents of path when set.
// A path of "-" reads stdin.
func readInput(inline, path string) (string, error) {
	if path == "" {
		return inline, nil
	}
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
