package dupecache

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// maxLineLength bounds a single candidate list line
const maxLineLength = 1024 * 1024

// ParseCandidateLine returns the path in one candidate list line: the first
// tab-delimited field, with surrounding whitespace removed
func ParseCandidateLine(line string) string {
	if idx := strings.IndexByte(line, '\t'); idx >= 0 {
		line = line[:idx]
	}
	return strings.TrimSpace(line)
}

// ReadCandidateList reads one candidate path per line, skipping blank lines.
// Trailing fields after the first tab are dropped.
func ReadCandidateList(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)

	var paths []string
	for scanner.Scan() {
		if path := ParseCandidateLine(scanner.Text()); path != "" {
			paths = append(paths, path)
		}
	}
	if err := scanner.Err(); err != nil {
		return paths, fmt.Errorf("error reading candidate list: %w", err)
	}
	return paths, nil
}

// WriteRows writes one "original \t duplicate \t hash \t size" line per row
func WriteRows(w io.Writer, rows []DuplicateRow) error {
	out := bufio.NewWriter(w)
	for _, row := range rows {
		line := strings.Join([]string{row.Original, row.Duplicate, row.Hash, strconv.FormatInt(row.Size, 10)}, "\t")
		if _, err := out.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("failed to write duplicate row: %w", err)
		}
	}
	if err := out.Flush(); err != nil {
		return fmt.Errorf("failed to flush duplicate rows: %w", err)
	}
	return nil
}
