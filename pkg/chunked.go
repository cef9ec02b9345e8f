package dupecache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ChunkedComparator streams file content through fixed-size buffers, either into a
// running digest or in lock-step against a second stream. Buffers are checked out of
// a pool for the duration of a single call, so memory stays bounded by the buffer size
// times the number of calls in flight, whatever the file sizes involved.
type ChunkedComparator struct {
	bufferSize int
	buffers    sync.Pool
}

// NewChunkedComparator creates a comparator whose buffers hold bufferSize bytes.
// A non-positive size selects DefaultBufferSize.
func NewChunkedComparator(bufferSize int) *ChunkedComparator {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	cc := &ChunkedComparator{bufferSize: bufferSize}
	cc.buffers.New = func() any {
		buf := make([]byte, bufferSize)
		return &buf
	}
	return cc
}

// BufferSize returns the size of each chunk buffer
func (cc *ChunkedComparator) BufferSize() int {
	return cc.bufferSize
}

func (cc *ChunkedComparator) checkout() *[]byte {
	return cc.buffers.Get().(*[]byte)
}

func (cc *ChunkedComparator) checkin(buf *[]byte) {
	cc.buffers.Put(buf)
}

// readFull fills buf from r unless the stream runs out first.
// It returns the byte count and whether the stream ended short of len(buf).
func readFull(r io.Reader, buf []byte) (int, bool, error) {
	n, err := io.ReadFull(r, buf)
	switch {
	case err == nil:
		return n, false, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return n, true, nil
	default:
		return n, false, err
	}
}

// Digest feeds up to length bytes of src into target, one buffer at a time.
// Reaching the end of src early is not an error.
func (cc *ChunkedComparator) Digest(target io.Writer, src io.Reader, length int64) error {
	if length <= 0 {
		return nil
	}

	bufp := cc.checkout()
	defer cc.checkin(bufp)
	buf := *bufp

	for remaining := length; remaining > 0; {
		chunk := buf
		if remaining < int64(len(chunk)) {
			chunk = chunk[:remaining]
		}

		n, eof, err := readFull(src, chunk)
		if n > 0 {
			if _, werr := target.Write(chunk[:n]); werr != nil {
				return fmt.Errorf("failed to feed digest: %w", werr)
			}
		}
		if err != nil {
			return fmt.Errorf("failed to read chunk: %w", err)
		}
		if eof {
			return nil
		}
		remaining -= int64(n)
	}

	return nil
}

// ContentEquals reads up to length bytes from a and b in lock-step and reports whether
// every chunk matched, both in content and in where each stream ended.
func (cc *ChunkedComparator) ContentEquals(a, b io.Reader, length int64) (bool, error) {
	if length <= 0 {
		return true, nil
	}

	bufpA := cc.checkout()
	defer cc.checkin(bufpA)
	bufpB := cc.checkout()
	defer cc.checkin(bufpB)
	bufA, bufB := *bufpA, *bufpB

	for remaining := length; remaining > 0; {
		chunk := int64(len(bufA))
		if remaining < chunk {
			chunk = remaining
		}

		na, eofA, err := readFull(a, bufA[:chunk])
		if err != nil {
			return false, fmt.Errorf("failed to read first stream: %w", err)
		}
		nb, eofB, err := readFull(b, bufB[:chunk])
		if err != nil {
			return false, fmt.Errorf("failed to read second stream: %w", err)
		}

		if na != nb || eofA != eofB || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		if eofA {
			return true, nil
		}
		remaining -= chunk
	}

	return true, nil
}

// DigestSample feeds target the first and last sampleSize bytes of src when the file is
// larger than two samples, and the whole file otherwise.
func (cc *ChunkedComparator) DigestSample(target io.Writer, src io.ReaderAt, size, sampleSize int64) error {
	if hasDistinctTail(size, sampleSize) {
		if err := cc.Digest(target, io.NewSectionReader(src, 0, sampleSize), sampleSize); err != nil {
			return err
		}
		return cc.Digest(target, io.NewSectionReader(src, size-sampleSize, sampleSize), sampleSize)
	}
	return cc.Digest(target, io.NewSectionReader(src, 0, size), size)
}

// ContentEqualsSample compares the head and tail windows of two files of the same size.
// The window is min(size, sampleSize); when it covers the whole file only the head is read.
func (cc *ChunkedComparator) ContentEqualsSample(a, b io.ReaderAt, size, sampleSize int64) (bool, error) {
	window := min(size, sampleSize)

	equal, err := cc.ContentEquals(io.NewSectionReader(a, 0, window), io.NewSectionReader(b, 0, window), window)
	if err != nil || !equal || window >= size {
		return equal, err
	}

	tail := size - window
	return cc.ContentEquals(io.NewSectionReader(a, tail, window), io.NewSectionReader(b, tail, window), window)
}
