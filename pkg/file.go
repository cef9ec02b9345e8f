package dupecache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

var (
	// ErrNotAbsolute is returned for candidate paths that are not absolute
	ErrNotAbsolute = errors.New("path is not absolute")
	// ErrNotRegular is returned for candidate paths that are not regular files
	ErrNotRegular = errors.New("not a regular file")
)

// fileState is the part of a stat result the hash cache keys on
type fileState struct {
	Size    int64
	ModTime int64 // nanoseconds since the epoch
}

// statFile stats path, following symlinks, and rejects anything but regular files
func statFile(path string) (fileState, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return fileState{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFREG {
		return fileState{}, fmt.Errorf("%s: %w", path, ErrNotRegular)
	}
	return fileState{
		Size:    st.Size,
		ModTime: st.Mtim.Nano(),
	}, nil
}

// validateCandidate checks a candidate path is absolute and names an existing regular file
func validateCandidate(path string) (fileState, error) {
	if !filepath.IsAbs(path) {
		return fileState{}, fmt.Errorf("%s: %w", path, ErrNotAbsolute)
	}
	return statFile(path)
}

// openSequential opens path for reading and tells the kernel we read it front to back
func openSequential(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}

	// Advice only, a failure here changes nothing about correctness
	if err := unix.Fadvise(int(file.Fd()), 0, 0, unix.FADV_SEQUENTIAL); err != nil {
		VerboseLog(3, "fadvise failed for %s: %v", path, err)
	}

	return file, nil
}

// fileExists reports whether path exists and is a regular file
func fileExists(path string) bool {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return false
	}
	return st.Mode&unix.S_IFMT == unix.S_IFREG
}
