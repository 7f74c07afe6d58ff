package diff

import (
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/safedit/host/internal/errors"
)

// Op classifies one line of a hunk body.
type Op byte

const (
	OpContext Op = ' '
	OpAdd     Op = '+'
	OpDelete  Op = '-'
)

// Line is one body line of a hunk. Text carries no trailing newline.
type Line struct {
	Op   Op
	Text string
}

// Hunk is one contiguous change region of a unified diff.
type Hunk struct {
	OldStart int // 1-based first line in the old text (0 for pure insertion into empty)
	OldLines int
	NewStart int
	NewLines int
	Lines    []Line
}

// hunkHeaderRegex matches unified diff hunk headers like:
// @@ -1,5 +1,7 @@
// @@ -0,0 +1,10 @@ (new file)
// @@ -1,10 +0,0 @@ (deleted file)
var hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// Parse splits unified diff text into ordered hunks. Header lines before the
// first @@ (---/+++, diff --git, index) are skipped. Structural problems
// return a "malformed diff" validation error: no hunks at all, an
// unparseable @@ line, or hunk bodies whose line counts disagree with the
// header.
func Parse(diffText string) ([]Hunk, error) {
	var hunks []Hunk
	var current *Hunk
	var wantOld, wantNew int

	finish := func() error {
		if current == nil {
			return nil
		}
		if wantOld != 0 || wantNew != 0 {
			return apperrors.MalformedDiff("hunk body shorter than its header declares")
		}
		hunks = append(hunks, *current)
		current = nil
		return nil
	}

	for _, raw := range strings.Split(diffText, "\n") {
		if strings.HasPrefix(raw, "@@") {
			matches := hunkHeaderRegex.FindStringSubmatch(raw)
			if matches == nil {
				return nil, apperrors.MalformedDiff("unparseable hunk header: " + raw)
			}
			if err := finish(); err != nil {
				return nil, err
			}

			h := Hunk{OldLines: 1, NewLines: 1}
			h.OldStart, _ = strconv.Atoi(matches[1])
			if matches[2] != "" {
				h.OldLines, _ = strconv.Atoi(matches[2])
			}
			h.NewStart, _ = strconv.Atoi(matches[3])
			if matches[4] != "" {
				h.NewLines, _ = strconv.Atoi(matches[4])
			}
			current = &h
			wantOld, wantNew = h.OldLines, h.NewLines
			continue
		}

		if current == nil {
			continue // file headers and other preamble
		}
		if wantOld == 0 && wantNew == 0 {
			// Body complete; anything that follows belongs to headers of a
			// possible next section.
			if err := finish(); err != nil {
				return nil, err
			}
			continue
		}

		if raw == "" {
			// A context line holding an empty line loses its leading space
			// with some producers.
			current.Lines = append(current.Lines, Line{Op: OpContext})
			wantOld--
			wantNew--
			continue
		}

		op, text := Op(raw[0]), raw[1:]
		switch op {
		case OpContext:
			wantOld--
			wantNew--
		case OpDelete:
			wantOld--
		case OpAdd:
			wantNew--
		case '\\':
			// "\ No newline at end of file"; line content is unaffected
			// because all text is newline-normalized before application.
			continue
		default:
			return nil, apperrors.MalformedDiff("unexpected line in hunk body: " + raw)
		}
		if wantOld < 0 || wantNew < 0 {
			return nil, apperrors.MalformedDiff("hunk body longer than its header declares")
		}
		current.Lines = append(current.Lines, Line{Op: op, Text: text})
	}

	if err := finish(); err != nil {
		return nil, err
	}
	if len(hunks) == 0 {
		return nil, apperrors.MalformedDiff("no hunks found")
	}
	return hunks, nil
}
