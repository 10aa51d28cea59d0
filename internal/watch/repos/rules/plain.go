package rules

import (
	"errors"
	"io"
	"strings"

	"github.com/haukened/watchangel/internal/watch/common/lines"
	logpkg "github.com/haukened/watchangel/internal/watch/common/log"
)

// maxLineBytes bounds a single list line; titles and channel names are short.
const maxLineBytes = 64 * 1024

// ParsePlainList parses a newline-delimited UTF-8 list.
//
// Behavior:
// - Strips a leading byte order mark
// - Trims surrounding whitespace
// - Skips lines that are empty after trimming
// - Preserves order, case and duplicates; there is no comment or escape syntax
//   because channel names may legitimately contain '#'
// - Skips, with a warning, lines longer than maxLineBytes
func ParsePlainList(r io.Reader, source string, logger logpkg.Logger) ([]string, error) {
	lr := lines.NewReader(r, maxLineBytes)
	out := make([]string, 0, 32)
	for {
		raw, lineNum, skipped, err := lr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Debug(map[string]any{"source": source, "line": lineNum, "error": err.Error()}, "parse_plain_list_read_error")
			return nil, err
		}
		if skipped {
			logger.Warn(map[string]any{"source": source, "line": lineNum, "limit": maxLineBytes}, "parse_plain_list_line_too_long")
			continue
		}
		line := string(raw)
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\uFEFF")
		}
		s := strings.TrimSpace(line)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	logger.Debug(map[string]any{"source": source, "count": len(out)}, "parse_plain_list_done")
	return out, nil
}

// FormatPlainList renders lines in the format ParsePlainList reads.
func FormatPlainList(lines []string) []byte {
	var b strings.Builder
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
