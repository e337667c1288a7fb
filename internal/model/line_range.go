package model

import (
	"fmt"
	"strconv"
	"strings"
)

// LineRange is a 1-based, inclusive span of lines. The zero value means "no selection".
type LineRange struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

// NewLineRange validates explicit line numbers.
func NewLineRange(start, end int) (LineRange, error) {
	if start < 1 {
		return LineRange{}, fmt.Errorf("start line must be positive, got %d", start)
	}
	if end < start {
		return LineRange{}, fmt.Errorf("end line %d before start line %d", end, start)
	}
	return LineRange{StartLine: start, EndLine: end}, nil
}

// LineRangeFromOffsets maps a character-offset selection [start, end) in text to lines.
// The end offset is exclusive, so it is stepped back one character before mapping;
// a selection that ends just after a newline does not pull in the following line.
// Offsets count runes and are clamped to the text.
func LineRangeFromOffsets(text string, start, end int) (LineRange, error) {
	if end <= start {
		return LineRange{}, fmt.Errorf("%w: empty selection [%d, %d)", ErrInputMissing, start, end)
	}

	runes := []rune(text)
	start = clamp(start, 0, len(runes))
	last := clamp(end-1, start, max(len(runes)-1, start))

	startLine := lineAt(runes, start)
	endLine := lineAt(runes, last)
	return LineRange{StartLine: startLine, EndLine: endLine}, nil
}

// lineAt returns the 1-based line containing offset.
func lineAt(runes []rune, offset int) int {
	line := 1
	for i := 0; i < offset && i < len(runes); i++ {
		if runes[i] == '\n' {
			line++
		}
	}
	return line
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (r LineRange) IsZero() bool {
	return r.StartLine == 0 && r.EndLine == 0
}

// String renders "12" for a single line and "12-18" for a span.
func (r LineRange) String() string {
	if r.IsZero() {
		return ""
	}
	if r.StartLine == r.EndLine {
		return strconv.Itoa(r.StartLine)
	}
	return fmt.Sprintf("%d-%d", r.StartLine, r.EndLine)
}

// ParseLineRange parses "12" or "12-18" (also "12,18", as git blame -L accepts).
func ParseLineRange(s string) (LineRange, error) {
	s = strings.TrimSpace(s)
	first, second, found := strings.Cut(strings.ReplaceAll(s, ",", "-"), "-")

	start, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return LineRange{}, fmt.Errorf("invalid line range %q", s)
	}
	if !found {
		return NewLineRange(start, start)
	}

	end, err := strconv.Atoi(strings.TrimSpace(second))
	if err != nil {
		return LineRange{}, fmt.Errorf("invalid line range %q", s)
	}
	return NewLineRange(start, end)
}
