// Package diff generates, parses, and applies unified diffs.
// Generation uses github.com/pmezard/go-difflib/difflib to produce classic
// unified patches (---/+++ headers, @@ hunks, lines prefixed with ' ', '-',
// '+'). Parsing and application work hunk by hunk so a patch computed against
// one version of a file can be checked line-for-line before anything changes.
package diff

import (
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// ContextLines is the number of unchanged lines surrounding each hunk.
const ContextLines = 3

// Generate produces a unified diff from a to b, labelled a/<name> and
// b/<name>. Pure and deterministic; identical inputs yield an empty string.
func Generate(a, b, name string) string {
	u := difflib.UnifiedDiff{
		A:        splitLinesKeepNL(a),
		B:        splitLinesKeepNL(b),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  ContextLines,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		// GetUnifiedDiffString only fails on writer errors, which a
		// bytes.Buffer never produces.
		return ""
	}
	return s
}

// splitLinesKeepNL splits into lines and keeps newline characters, which
// produces exact unified hunks. A missing trailing newline is normalized to
// one, the same convention difflib.SplitLines uses; without it a bare final
// line would glue itself to the next diff line in the output.
func splitLinesKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	lines := strings.SplitAfter(s, "\n")
	if last := lines[len(lines)-1]; last == "" {
		lines = lines[:len(lines)-1]
	} else {
		lines[len(lines)-1] = last + "\n"
	}
	return lines
}

// Stats holds added/deleted line counts for a diff text.
type Stats struct {
	AddedLines   int
	DeletedLines int
}

// CalculateStats counts additions and deletions in a unified diff,
// excluding the ---/+++ file header lines.
func CalculateStats(diffText string) Stats {
	var stats Stats
	for _, line := range strings.Split(diffText, "\n") {
		if len(line) == 0 {
			continue
		}
		switch line[0] {
		case '+':
			if !strings.HasPrefix(line, "+++") {
				stats.AddedLines++
			}
		case '-':
			if !strings.HasPrefix(line, "---") {
				stats.DeletedLines++
			}
		}
	}
	return stats
}
