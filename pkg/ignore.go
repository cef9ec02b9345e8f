package dupecache

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// IgnoreManager excludes candidate paths matching any of a file's regular expressions
type IgnoreManager struct {
	ignorePath string
	patterns   []*regexp.Regexp
	loaded     bool
}

// NewIgnoreManager creates an ignore manager reading patterns from ignorePath.
// An empty path means patterns only come from AddPattern.
func NewIgnoreManager(ignorePath string) *IgnoreManager {
	return &IgnoreManager{
		ignorePath: ignorePath,
		patterns:   make([]*regexp.Regexp, 0),
	}
}

// LoadIgnorePatterns loads ignore patterns from the ignore file, creating a
// commented template when the file does not exist yet
func (im *IgnoreManager) LoadIgnorePatterns() error {
	if im.loaded {
		return nil
	}
	if im.ignorePath == "" {
		im.loaded = true
		return nil
	}

	file, err := os.Open(im.ignorePath)
	if errors.Is(err, os.ErrNotExist) {
		if err := im.CreateEmptyIgnoreFile(); err != nil {
			return fmt.Errorf("failed to create ignore file: %w", err)
		}
		file, err = os.Open(im.ignorePath)
	}
	if err != nil {
		return fmt.Errorf("failed to open ignore file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		pattern, err := regexp.Compile(line)
		if err != nil {
			return fmt.Errorf("invalid regex pattern at line %d: %s - %w", lineNum, line, err)
		}

		im.patterns = append(im.patterns, pattern)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading ignore file: %w", err)
	}

	im.loaded = true
	return nil
}

// ShouldIgnore checks if a path should be ignored based on patterns
func (im *IgnoreManager) ShouldIgnore(path string) bool {
	if !im.loaded {
		if err := im.LoadIgnorePatterns(); err != nil {
			Warnf("ignore patterns unavailable: %v", err)
			im.loaded = true
		}
	}

	normalisedPath := filepath.ToSlash(path)
	for _, pattern := range im.patterns {
		if pattern.MatchString(normalisedPath) {
			return true
		}
	}

	return false
}

// CreateEmptyIgnoreFile creates an ignore file holding only comments and the cache file rule
func (im *IgnoreManager) CreateEmptyIgnoreFile() error {
	if err := os.MkdirAll(filepath.Dir(im.ignorePath), 0755); err != nil {
		return err
	}

	file, err := os.Create(im.ignorePath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.WriteString(`# dupecache ignore patterns
#
# Candidate paths matching any regular expression below are left out of
# duplicate detection and counted as ignored.
#
# Each line should contain a valid Go regular expression, matched against
# the absolute path with forward slashes.
# Lines starting with # are comments and are ignored.
#
# Examples:
# /\.git/               # Anything inside a .git directory
# \.DS_Store$           # .DS_Store files
# \.tmp$                # Temporary files

# Hash cache files change while a run is in progress
/` + regexp.QuoteMeta(DefaultCacheFileName) + `$
`)

	return err
}

// AddPattern adds a new ignore pattern
func (im *IgnoreManager) AddPattern(patternStr string) error {
	pattern, err := regexp.Compile(patternStr)
	if err != nil {
		return fmt.Errorf("invalid regex pattern: %s - %w", patternStr, err)
	}

	im.patterns = append(im.patterns, pattern)
	return nil
}

// HasPatterns returns true if there are any ignore patterns loaded
func (im *IgnoreManager) HasPatterns() bool {
	if !im.loaded {
		im.ShouldIgnore("")
	}
	return len(im.patterns) > 0
}

// GetIgnoreFilePath returns the path to the ignore file
func (im *IgnoreManager) GetIgnoreFilePath() string {
	return im.ignorePath
}
