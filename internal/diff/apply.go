package diff

import (
	"fmt"
	"strings"

	apperrors "github.com/safedit/host/internal/errors"
)

// Apply patches base with the given hunks, in ascending old-start order.
// It is a fold carrying a running line-offset: earlier hunks that add or
// remove lines shift where later hunks land, so each hunk's position is the
// header's old-start adjusted by the net change so far, never the declared
// number taken verbatim.
//
// Context and delete lines must match the current text exactly at the
// adjusted position; a mismatch is a conflict naming the hunk and the
// expected vs. actual line, returned before anything else is touched by the
// caller. On success the fully patched text is returned, newline-terminated.
func Apply(base string, hunks []Hunk) (string, error) {
	lines := splitLines(base)
	offset := 0
	prevStart := 0

	for i, h := range hunks {
		if h.OldStart < prevStart {
			return "", apperrors.MalformedDiff(
				fmt.Sprintf("hunk %d out of order (old start %d after %d)", i, h.OldStart, prevStart))
		}
		prevStart = h.OldStart

		// A zero-length old range means "insert after line OldStart", so the
		// insertion index is OldStart itself; otherwise the hunk begins at
		// the 1-based OldStart.
		pos := h.OldStart - 1 + offset
		if h.OldLines == 0 {
			pos = h.OldStart + offset
		}
		if pos < 0 || pos > len(lines) {
			return "", conflict(i, pos, "<start of hunk>", lines)
		}

		for _, l := range h.Lines {
			switch l.Op {
			case OpContext:
				if pos >= len(lines) || lines[pos] != l.Text {
					return "", conflict(i, pos, l.Text, lines)
				}
				pos++
			case OpDelete:
				if pos >= len(lines) || lines[pos] != l.Text {
					return "", conflict(i, pos, l.Text, lines)
				}
				lines = append(lines[:pos], lines[pos+1:]...)
				offset--
			case OpAdd:
				lines = append(lines[:pos], append([]string{l.Text}, lines[pos:]...)...)
				pos++
				offset++
			}
		}
	}

	return joinLines(lines), nil
}

// conflict builds the hunk-mismatch error with the actual line at pos, or a
// placeholder when pos is past the end of the text.
func conflict(hunkIndex, pos int, expected string, lines []string) error {
	actual := "<end of file>"
	if pos >= 0 && pos < len(lines) {
		actual = lines[pos]
	}
	return apperrors.HunkMismatch(hunkIndex, pos+1, expected, actual)
}

// splitLines splits newline-normalized text into bare lines; empty text has
// no lines.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// joinLines is the inverse of splitLines.
func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
