package dupecache

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// ParseHumanSize parses human-readable size strings (e.g., "2M", "512k", "1GiB").
// Single-letter suffixes are binary multiples, as in "10M" = 10*1024*1024.
func ParseHumanSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(sizeStr)
	if sizeStr == "" {
		return 0, fmt.Errorf("empty size string")
	}

	switch last := strings.ToUpper(sizeStr[len(sizeStr)-1:]); last {
	case "K", "M", "G", "T":
		sizeStr += "iB"
	}

	size, err := humanize.ParseBytes(sizeStr)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", sizeStr, err)
	}
	if size == 0 {
		return 0, fmt.Errorf("size must be positive: %s", sizeStr)
	}
	if size > uint64(^uint(0)>>1) {
		return 0, fmt.Errorf("size too large: %s", sizeStr)
	}

	return int64(size), nil
}

// FormatSize renders a byte count for humans
func FormatSize(size int64) string {
	if size < 0 {
		return fmt.Sprintf("%d B", size)
	}
	return humanize.IBytes(uint64(size))
}
