package dupecache

import (
	"bytes"
	"encoding/binary"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/vectorio"
	"github.com/pierrec/lz4/v4"
)

// ErrCacheFormat is returned when a cache file was written by another format or algorithm
var ErrCacheFormat = errors.New("unrecognised cache file format")

// cachePreamble is the fixed little-endian header in front of the compressed table
type cachePreamble struct {
	Signature [4]byte
	Version   uint32
	HashType  uint16
	Flags     uint16
}

// cacheHeaderRow names the columns; the last two repeat once per stored sample
var cacheHeaderRow = []string{
	cacheColumnPathType,
	cacheColumnFilePath,
	cacheColumnFileSize,
	cacheColumnFileTime,
	cacheColumnHashSize,
	cacheColumnHashCode,
}

// rootPrefix returns root with a trailing separator, or "" for the default cache
func rootPrefix(root string) string {
	if root == "" {
		return ""
	}
	if strings.HasSuffix(root, string(filepath.Separator)) {
		return root
	}
	return root + string(filepath.Separator)
}

// encodeCacheTable serialises the records of one cache: preamble, then an lz4 frame
// holding a delimited table with one variable-width row per file
func encodeCacheTable(records *recordTable, root string, hashType uint16) ([]byte, []byte, error) {
	var preamble bytes.Buffer
	if err := binary.Write(&preamble, binary.LittleEndian, cachePreamble{
		Signature: CacheSignature,
		Version:   CurrentCacheVersion,
		HashType:  hashType,
	}); err != nil {
		return nil, nil, fmt.Errorf("failed to encode cache preamble: %w", err)
	}

	var body bytes.Buffer
	compressor := lz4.NewWriter(&body)
	table := csv.NewWriter(compressor)
	table.Comma = '\t'

	if err := table.Write(cacheHeaderRow); err != nil {
		return nil, nil, fmt.Errorf("failed to write cache header row: %w", err)
	}

	prefix := rootPrefix(root)
	var rowErr error
	records.ForEach(func(record *cacheRecord, _ string) bool {
		kind, path := PathKindAbsolute, record.Path
		if prefix != "" && strings.HasPrefix(path, prefix) {
			kind, path = PathKindRelative, strings.TrimPrefix(path, prefix)
		}

		row := make([]string, 0, cacheFixedColumnCount+2*len(record.Samples))
		row = append(row, kind, path, strconv.FormatInt(record.Size, 10), strconv.FormatInt(record.ModTime, 10))
		for _, sample := range record.Samples {
			row = append(row, strconv.FormatInt(sample.SampleSize, 10), sample.Hash)
		}

		if err := table.Write(row); err != nil {
			rowErr = fmt.Errorf("failed to write cache row for %s: %w", record.Path, err)
			return false
		}
		return true
	})
	if rowErr != nil {
		return nil, nil, rowErr
	}

	table.Flush()
	if err := table.Error(); err != nil {
		return nil, nil, fmt.Errorf("failed to flush cache table: %w", err)
	}
	if err := compressor.Close(); err != nil {
		return nil, nil, fmt.Errorf("failed to compress cache table: %w", err)
	}

	return preamble.Bytes(), body.Bytes(), nil
}

// decodeCacheTable parses a cache file written by encodeCacheTable. Rows that cannot be
// parsed are skipped; a wrong preamble or header row fails the whole file with ErrCacheFormat.
func decodeCacheTable(data []byte, root string, hashType uint16) ([]*cacheRecord, error) {
	if len(data) < PreambleSize {
		return nil, fmt.Errorf("cache file too short (%d bytes): %w", len(data), ErrCacheFormat)
	}

	var preamble cachePreamble
	if err := binary.Read(bytes.NewReader(data[:PreambleSize]), binary.LittleEndian, &preamble); err != nil {
		return nil, fmt.Errorf("failed to decode cache preamble: %w", err)
	}
	if preamble.Signature != CacheSignature {
		return nil, fmt.Errorf("bad signature %q: %w", preamble.Signature[:], ErrCacheFormat)
	}
	if preamble.Version != CurrentCacheVersion {
		return nil, fmt.Errorf("version %d, expected %d: %w", preamble.Version, CurrentCacheVersion, ErrCacheFormat)
	}
	if preamble.HashType != hashType {
		return nil, fmt.Errorf("hash type %s, expected %s: %w",
			HashTypeName(preamble.HashType), HashTypeName(hashType), ErrCacheFormat)
	}

	table := csv.NewReader(lz4.NewReader(bytes.NewReader(data[PreambleSize:])))
	table.Comma = '\t'
	table.FieldsPerRecord = -1

	header, err := table.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read cache header row: %w", err)
	}
	if !equalRows(header, cacheHeaderRow) {
		return nil, fmt.Errorf("header row %v: %w", header, ErrCacheFormat)
	}

	var records []*cacheRecord
	for line := 2; ; line++ {
		row, err := table.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return records, fmt.Errorf("failed to read cache row %d: %w", line, err)
		}

		record, err := parseCacheRow(row, root)
		if err != nil {
			VerboseLog(2, "skipping cache row %d: %v", line, err)
			continue
		}
		records = append(records, record)
	}

	return records, nil
}

// CacheFileAlgorithm reads the preamble of a cache file and returns the hash
// algorithm its records were computed with
func CacheFileAlgorithm(cacheFile string) (*HashAlgorithm, error) {
	file, err := os.Open(cacheFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache file: %w", err)
	}
	defer file.Close()

	var preamble cachePreamble
	if err := binary.Read(file, binary.LittleEndian, &preamble); err != nil {
		return nil, fmt.Errorf("failed to read cache preamble of %s: %w", cacheFile, ErrCacheFormat)
	}
	if preamble.Signature != CacheSignature {
		return nil, fmt.Errorf("bad signature %q: %w", preamble.Signature[:], ErrCacheFormat)
	}

	algorithm, err := GetHashAlgorithmByType(preamble.HashType)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrCacheFormat)
	}
	return algorithm, nil
}

// parseCacheRow turns one table row back into a record with an absolute path
func parseCacheRow(row []string, root string) (*cacheRecord, error) {
	if len(row) < cacheFixedColumnCount || (len(row)-cacheFixedColumnCount)%2 != 0 {
		return nil, fmt.Errorf("unexpected column count %d", len(row))
	}

	record := &cacheRecord{}
	switch row[0] {
	case PathKindAbsolute:
		record.Path = row[1]
	case PathKindRelative:
		if root == "" {
			return nil, fmt.Errorf("relative path %q in a cache without root", row[1])
		}
		record.Path = filepath.Join(root, row[1])
	default:
		return nil, fmt.Errorf("unknown path kind %q", row[0])
	}

	var err error
	if record.Size, err = strconv.ParseInt(row[2], 10, 64); err != nil {
		return nil, fmt.Errorf("invalid file size %q: %w", row[2], err)
	}
	if record.ModTime, err = strconv.ParseInt(row[3], 10, 64); err != nil {
		return nil, fmt.Errorf("invalid file time %q: %w", row[3], err)
	}

	for i := cacheFixedColumnCount; i < len(row); i += 2 {
		sampleSize, err := strconv.ParseInt(row[i], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid hash size %q: %w", row[i], err)
		}
		record.Samples = append(record.Samples, sampleHash{SampleSize: sampleSize, Hash: row[i+1]})
	}

	return record, nil
}

func equalRows(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// makeIovec points an iovec at b, which must not be empty
func makeIovec(b []byte) syscall.Iovec {
	iovec := syscall.Iovec{Base: &b[0]}
	iovec.SetLen(len(b))
	return iovec
}

// writeCacheFile writes preamble and body with a single writev into a temporary file
// next to outputPath, then renames it into place
func writeCacheFile(outputPath string, preamble, body []byte) error {
	tempPath := filepath.Join(filepath.Dir(outputPath),
		fmt.Sprintf(TempCacheFile, filepath.Base(outputPath), os.Getpid()))

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp cache file %s: %w", tempPath, err)
	}
	defer os.Remove(tempPath) // no-op once renamed

	iovecs := []syscall.Iovec{makeIovec(preamble), makeIovec(body)}
	expected := len(preamble) + len(body)

	nw, err := vectorio.WritevRaw(uintptr(file.Fd()), iovecs)
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to write cache file with vectorio: %w", err)
	}
	if nw != expected {
		file.Close()
		return fmt.Errorf("cache file write incomplete: wrote %d bytes, expected %d", nw, expected)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync cache file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close cache file: %w", err)
	}

	if err := os.Rename(tempPath, outputPath); err != nil {
		return fmt.Errorf("failed to move cache file into place: %w", err)
	}
	return nil
}
