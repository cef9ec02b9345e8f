package dupecache

import (
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// contentKey stands for a file's sampled content: its head and tail windows of
// min(size, sampleSize) bytes. The bucket is an xxhash of exactly those bytes, so
// keys that compare equal always share a bucket; equality itself is decided by
// comparing the bytes.
type contentKey struct {
	path       string
	size       int64
	sampleSize int64
	bucket     uint64
}

// contentWindows returns the offsets of the head and tail windows and their length.
// When the window covers the whole file there is only a head.
func contentWindows(size, sampleSize int64) (offsets []int64, window int64) {
	window = min(size, sampleSize)
	if window >= size {
		return []int64{0}, window
	}
	return []int64{0, size - window}, window
}

// newContentKey reads the sampled windows of path to compute its bucket
func newContentKey(cc *ChunkedComparator, path string, size, sampleSize int64) (contentKey, error) {
	file, err := openSequential(path)
	if err != nil {
		return contentKey{}, err
	}
	defer file.Close()

	digest := xxhash.New()
	offsets, window := contentWindows(size, sampleSize)
	for _, offset := range offsets {
		if err := cc.Digest(digest, io.NewSectionReader(file, offset, window), window); err != nil {
			return contentKey{}, fmt.Errorf("failed to sample %s: %w", path, err)
		}
	}

	return contentKey{
		path:       path,
		size:       size,
		sampleSize: sampleSize,
		bucket:     digest.Sum64(),
	}, nil
}

// equal compares the sampled windows of two keys byte for byte. Keys taken with
// different sample sizes or for different file sizes are never equal.
func (ck contentKey) equal(cc *ChunkedComparator, other contentKey) (bool, error) {
	if ck.sampleSize != other.sampleSize || ck.size != other.size || ck.bucket != other.bucket {
		return false, nil
	}

	a, err := openSequential(ck.path)
	if err != nil {
		return false, err
	}
	defer a.Close()

	b, err := openSequential(other.path)
	if err != nil {
		return false, err
	}
	defer b.Close()

	return cc.ContentEqualsSample(a, b, ck.size, ck.sampleSize)
}
