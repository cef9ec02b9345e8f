package dupecache

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/csv"
	"encoding/hex"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha256Hex(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// readCacheRows decompresses a cache file and returns its table rows, header included
func readCacheRows(t *testing.T, cacheFile string) [][]string {
	t.Helper()
	data, err := os.ReadFile(cacheFile)
	require.NoError(t, err)
	require.Greater(t, len(data), PreambleSize)
	assert.Equal(t, CacheSignature[:], data[:4])

	table := csv.NewReader(lz4.NewReader(bytes.NewReader(data[PreambleSize:])))
	table.Comma = '\t'
	table.FieldsPerRecord = -1
	rows, err := table.ReadAll()
	require.NoError(t, err)
	return rows
}

func TestHashCache_GetMatchesSampledDigest(t *testing.T) {
	dir := t.TempDir()
	data := patterned(100, 7)
	path := writeTestFile(t, dir, "data.bin", data)

	hc := NewHashCache("", filepath.Join(dir, DefaultCacheFileName), NewChunkedComparator(16), nil)

	hash, err := hc.Get(path, 10)
	require.NoError(t, err)
	assert.Equal(t, sha256Hex(data[:10], data[90:]), hash)

	hash, err = hc.Get(path, 50)
	require.NoError(t, err)
	assert.Equal(t, sha256Hex(data), hash, "a file of exactly two samples is hashed whole")

	hash, err = hc.Get(path, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, sha256Hex(data), hash)
}

func TestHashCache_HugeSampleHashesWholeFile(t *testing.T) {
	dir := t.TempDir()
	data := []byte("tiny")
	path := writeTestFile(t, dir, "tiny.bin", data)

	exbi, err := ParseHumanSize("5EiB")
	require.NoError(t, err)

	hc := NewHashCache("", filepath.Join(dir, DefaultCacheFileName), nil, nil)
	for _, sampleSize := range []int64{exbi, math.MaxInt64/2 + 1, math.MaxInt64} {
		hash, err := hc.Get(path, sampleSize)
		require.NoError(t, err, "sample size %d", sampleSize)
		assert.Equal(t, sha256Hex(data), hash, "sample size %d", sampleSize)
	}
	assert.Equal(t, 1, hc.Stats().Misses, "every huge sample maps to the whole-file window")
}

func TestHashCache_GetErrors(t *testing.T) {
	dir := t.TempDir()
	hc := NewHashCache("", filepath.Join(dir, DefaultCacheFileName), nil, nil)

	_, err := hc.Get(filepath.Join(dir, "missing"), 10)
	assert.Error(t, err)

	_, err = hc.Get(dir, 10)
	assert.ErrorIs(t, err, ErrNotRegular)

	path := writeTestFile(t, dir, "a", []byte("a"))
	_, err = hc.Get(path, 0)
	assert.Error(t, err)
}

func TestHashCache_HitsAndMisses(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "a.txt", patterned(64, 1))
	hc := NewHashCache("", filepath.Join(dir, DefaultCacheFileName), nil, nil)

	first, err := hc.Get(path, 8)
	require.NoError(t, err)
	second, err := hc.Get(path, 8)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = hc.Get(path, 4)
	require.NoError(t, err)

	stats := hc.Stats()
	assert.Equal(t, 1, stats.Records)
	assert.Equal(t, 1, stats.Hits)
	assert.Equal(t, 2, stats.Misses)
	assert.Equal(t, 1, stats.Computed)
}

func TestHashCache_ModTimeChangeRecomputes(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "a.txt", []byte("first content"))
	hc := NewHashCache("", filepath.Join(dir, DefaultCacheFileName), nil, nil)

	before, err := hc.Get(path, 1024)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("other content"), 0644))
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))

	after, err := hc.Get(path, 1024)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
	assert.Equal(t, sha256Hex([]byte("other content")), after)
	assert.Equal(t, 2, hc.Stats().Misses)
	assert.Equal(t, 1, hc.Stats().Records, "a stale record is replaced, not added to")
}

func TestHashCache_SizeChangeRecomputes(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "a.txt", []byte("short"))
	hc := NewHashCache("", filepath.Join(dir, DefaultCacheFileName), nil, nil)

	info, err := os.Stat(path)
	require.NoError(t, err)

	before, err := hc.Get(path, 1024)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("a good deal longer"), 0644))
	require.NoError(t, os.Chtimes(path, info.ModTime(), info.ModTime()))

	after, err := hc.Get(path, 1024)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
	assert.Equal(t, sha256Hex([]byte("a good deal longer")), after)
	assert.Equal(t, 2, hc.Stats().Misses)
	assert.Equal(t, 0, hc.Stats().Hits)
	assert.Equal(t, 1, hc.Stats().Records, "the stale record is replaced")
}

func TestHashCache_PersistsRelativeToRoot(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "root")
	path := writeTestFile(t, root, "sub/a.txt", patterned(300, 9))

	hc := NewHashCache(root, filepath.Join(root, DefaultCacheFileName), nil, nil)
	hash, err := hc.Get(path, 100)
	require.NoError(t, err)
	require.NoError(t, hc.Save())

	rows := readCacheRows(t, hc.CacheFile())
	require.Len(t, rows, 2)
	assert.Equal(t, cacheHeaderRow, rows[0])
	assert.Equal(t, PathKindRelative, rows[1][0])
	assert.Equal(t, filepath.Join("sub", "a.txt"), rows[1][1])
	assert.Equal(t, "300", rows[1][2])
	assert.Equal(t, []string{"200", hash}, rows[1][4:])

	// The root moves; its records follow it
	moved := filepath.Join(base, "moved")
	require.NoError(t, os.Rename(root, moved))

	reloaded := NewHashCache(moved, filepath.Join(moved, DefaultCacheFileName), nil, nil)
	require.NoError(t, reloaded.Load())
	again, err := reloaded.Get(filepath.Join(moved, "sub", "a.txt"), 100)
	require.NoError(t, err)
	assert.Equal(t, hash, again)
	assert.Equal(t, 1, reloaded.Stats().Hits)
	assert.Equal(t, 0, reloaded.Stats().Misses)
}

func TestHashCache_DefaultCacheStoresAbsolutePaths(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "data/a.txt", []byte("hello"))

	hc := NewHashCache("", filepath.Join(dir, DefaultCacheFileName), nil, nil)
	_, err := hc.Get(path, 1024)
	require.NoError(t, err)
	require.NoError(t, hc.Save())

	rows := readCacheRows(t, hc.CacheFile())
	require.Len(t, rows, 2)
	assert.Equal(t, PathKindAbsolute, rows[1][0])
	assert.Equal(t, path, rows[1][1])
}

func TestHashCache_SaveOnlyWhenDirty(t *testing.T) {
	dir := t.TempDir()
	hc := NewHashCache("", filepath.Join(dir, DefaultCacheFileName), nil, nil)

	require.NoError(t, hc.Save())
	assert.NoFileExists(t, hc.CacheFile())
}

func TestHashCache_HeaderMismatchLoadsEmpty(t *testing.T) {
	dir := t.TempDir()
	cacheFile := filepath.Join(dir, DefaultCacheFileName)

	var body bytes.Buffer
	zw := lz4.NewWriter(&body)
	_, err := zw.Write([]byte("pathType\tfilePath\tsize\n" + PathKindAbsolute + "\t/x\t1\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	var file bytes.Buffer
	require.NoError(t, binary.Write(&file, binary.LittleEndian, cachePreamble{
		Signature: CacheSignature,
		Version:   CurrentCacheVersion,
		HashType:  HashTypeSHA256,
	}))
	file.Write(body.Bytes())
	require.NoError(t, os.WriteFile(cacheFile, file.Bytes(), 0644))

	hc := NewHashCache("", cacheFile, nil, nil)
	assert.ErrorIs(t, hc.Load(), ErrCacheFormat)
	assert.Equal(t, 0, hc.Stats().Records)
}

func TestHashCache_AlgorithmMismatchLoadsEmpty(t *testing.T) {
	dir := t.TempDir()
	cacheFile := filepath.Join(dir, DefaultCacheFileName)
	path := writeTestFile(t, dir, "a.txt", []byte("content"))

	written := NewHashCache("", cacheFile, nil, nil)
	_, err := written.Get(path, 1024)
	require.NoError(t, err)
	require.NoError(t, written.Save())

	sha1, err := GetHashAlgorithm("sha1")
	require.NoError(t, err)
	hc := NewHashCache("", cacheFile, nil, sha1)
	assert.ErrorIs(t, hc.Load(), ErrCacheFormat)
	assert.Equal(t, 0, hc.Stats().Records)
}

func TestHashCache_GarbageFileLoadsEmpty(t *testing.T) {
	dir := t.TempDir()
	cacheFile := writeTestFile(t, dir, DefaultCacheFileName, []byte("not a cache"))
	path := writeTestFile(t, dir, "a.txt", []byte("content"))

	hc := NewHashCache("", cacheFile, nil, nil)
	hash, err := hc.Get(path, 1024)
	require.NoError(t, err, "a broken cache file only costs a recompute")
	assert.Equal(t, sha256Hex([]byte("content")), hash)
	assert.Equal(t, 1, hc.Stats().Misses)
}

func TestHashCache_Prune(t *testing.T) {
	dir := t.TempDir()
	keep := writeTestFile(t, dir, "keep", []byte("keep"))
	gone := writeTestFile(t, dir, "gone", []byte("gone"))
	changed := writeTestFile(t, dir, "changed", []byte("changed"))

	hc := NewHashCache("", filepath.Join(dir, DefaultCacheFileName), nil, nil)
	for _, path := range []string{keep, gone, changed} {
		_, err := hc.Get(path, 1024)
		require.NoError(t, err)
	}
	require.NoError(t, hc.Save())

	require.NoError(t, os.Remove(gone))
	require.NoError(t, os.WriteFile(changed, []byte("changed, longer"), 0644))

	reloaded := NewHashCache("", hc.CacheFile(), nil, nil)
	assert.Equal(t, 2, reloaded.Prune())
	assert.Equal(t, 1, reloaded.Stats().Records)
	require.NoError(t, reloaded.Save())

	rows := readCacheRows(t, hc.CacheFile())
	require.Len(t, rows, 2)
	assert.Equal(t, keep, rows[1][1])
}
