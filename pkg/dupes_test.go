package dupecache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestFinder returns a finder over a fresh router and the directory of its default cache
func newTestFinder(t *testing.T) (*DuplicateFinder, string) {
	t.Helper()
	defaultDir := t.TempDir()
	router := NewCacheRouter(defaultDir, WithComparator(NewChunkedComparator(32)))
	return NewDuplicateFinder(router, nil), defaultDir
}

func TestFindDuplicates_Basic(t *testing.T) {
	dir := t.TempDir()
	content := patterned(1000, 1)
	a := writeTestFile(t, dir, "A", content)
	b := writeTestFile(t, dir, "B", content)
	c := writeTestFile(t, dir, "C", patterned(1000, 2))

	finder, _ := newTestFinder(t)
	result := finder.FindDuplicates(nil, []string{a, b, c}, 16, 64)

	require.Len(t, result.Rows, 1)
	row := result.Rows[0]
	assert.Equal(t, a, row.Original)
	assert.Equal(t, b, row.Duplicate)
	assert.Equal(t, int64(1000), row.Size)
	assert.Equal(t, sha256Hex(content[:16], content[984:]), row.Hash)
	assert.Zero(t, result.Failures)
	assert.False(t, result.Cancelled)
}

func TestFindDuplicates_HugeHashSample(t *testing.T) {
	dir := t.TempDir()
	a := writeTestFile(t, dir, "a", []byte("same"))
	b := writeTestFile(t, dir, "b", []byte("same"))

	hashSample, err := ParseHumanSize("5EiB")
	require.NoError(t, err)

	finder, _ := newTestFinder(t)
	result := finder.FindDuplicates(nil, []string{a, b}, hashSample, 1024)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, sha256Hex([]byte("same")), result.Rows[0].Hash)
	assert.Zero(t, result.Failures)
}

func TestFindDuplicates_SmallestPathIsOriginal(t *testing.T) {
	dir := t.TempDir()
	content := []byte("same bytes")
	c := writeTestFile(t, dir, "c", content)
	a := writeTestFile(t, dir, "a", content)
	b := writeTestFile(t, dir, "b", content)

	finder, _ := newTestFinder(t)
	result := finder.FindDuplicates(nil, []string{c, a, b}, 0, 0)

	assert.Equal(t, []DuplicateRow{
		{Original: a, Duplicate: b, Hash: sha256Hex(content), Size: int64(len(content))},
		{Original: a, Duplicate: c, Hash: sha256Hex(content), Size: int64(len(content))},
	}, result.Rows)
}

func TestFindDuplicates_SeparateGroups(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"x1", "x2"} {
		paths = append(paths, writeTestFile(t, dir, name, []byte("xxxx")))
	}
	for _, name := range []string{"y1", "y2", "y3"} {
		paths = append(paths, writeTestFile(t, dir, name, []byte("yyyy")))
	}
	paths = append(paths, writeTestFile(t, dir, "z", []byte("zzzzzz")))

	finder, _ := newTestFinder(t)
	result := finder.FindDuplicates(nil, paths, 2, 2)

	require.Len(t, result.Rows, 3)
	for _, row := range result.Rows {
		assert.Equal(t, filepath.Base(row.Original)[0], filepath.Base(row.Duplicate)[0],
			"rows never pair files with different content")
		assert.Less(t, row.Original, row.Duplicate)
	}
	assert.Equal(t, filepath.Join(dir, "x1"), result.Rows[0].Original)
	assert.Equal(t, filepath.Join(dir, "y1"), result.Rows[1].Original)
	assert.Equal(t, filepath.Join(dir, "y1"), result.Rows[2].Original)
}

func TestFindDuplicates_SampledContentOnly(t *testing.T) {
	dir := t.TempDir()
	content := patterned(1000, 3)
	changed := append([]byte(nil), content...)
	changed[500] ^= 0xff

	a := writeTestFile(t, dir, "a", content)
	b := writeTestFile(t, dir, "b", changed)

	finder, _ := newTestFinder(t)

	result := finder.FindDuplicates(nil, []string{a, b}, 16, 64)
	assert.Len(t, result.Rows, 1, "bytes outside both samples are never read")

	result = finder.FindDuplicates(nil, []string{a, b}, 16, 1000)
	assert.Empty(t, result.Rows, "a content sample covering the file finds the difference")
}

func TestFindDuplicates_SameHeadDifferentTail(t *testing.T) {
	dir := t.TempDir()
	content := patterned(1000, 4)
	changed := append([]byte(nil), content...)
	changed[999] ^= 0xff

	a := writeTestFile(t, dir, "a", content)
	b := writeTestFile(t, dir, "b", changed)

	finder, _ := newTestFinder(t)
	result := finder.FindDuplicates(nil, []string{a, b}, 16, 64)
	assert.Empty(t, result.Rows)
}

func TestFindDuplicates_EmptyFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeTestFile(t, dir, "a", nil)
	b := writeTestFile(t, dir, "b", nil)

	finder, _ := newTestFinder(t)
	result := finder.FindDuplicates(nil, []string{a, b}, 0, 0)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, int64(0), result.Rows[0].Size)
}

func TestFindDuplicates_Failures(t *testing.T) {
	dir := t.TempDir()
	a := writeTestFile(t, dir, "a", []byte("dup"))
	b := writeTestFile(t, dir, "b", []byte("dup"))

	finder, _ := newTestFinder(t)
	result := finder.FindDuplicates(nil, []string{
		a,
		b,
		a,                             // repeated
		"relative/path",               // not absolute
		filepath.Join(dir, "missing"), // not there
		dir,                           // not a regular file
		filepath.Join(dir, ".", "b"),  // repeated once cleaned
	}, 0, 0)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, a, result.Rows[0].Original)
	assert.Equal(t, b, result.Rows[0].Duplicate)
	assert.Equal(t, 5, result.Failures)
}

func TestFindDuplicates_SamePathTwice(t *testing.T) {
	dir := t.TempDir()
	a := writeTestFile(t, dir, "a", []byte("alone"))

	finder, _ := newTestFinder(t)
	result := finder.FindDuplicates(nil, []string{a, a}, 0, 0)

	assert.Empty(t, result.Rows, "a file is never its own duplicate")
	assert.Equal(t, 1, result.Failures)
}

func TestFindDuplicates_UnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root reads files regardless of permissions")
	}

	dir := t.TempDir()
	a := writeTestFile(t, dir, "a", []byte("same"))
	b := writeTestFile(t, dir, "b", []byte("same"))
	c := writeTestFile(t, dir, "c", []byte("same"))
	require.NoError(t, os.Chmod(c, 0))

	finder, _ := newTestFinder(t)
	result := finder.FindDuplicates(nil, []string{a, b, c}, 0, 0)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, 1, result.Failures)
}

func TestFindDuplicates_Ignore(t *testing.T) {
	dir := t.TempDir()
	a := writeTestFile(t, dir, "a", []byte("same"))
	b := writeTestFile(t, dir, "b", []byte("same"))
	skipped := writeTestFile(t, dir, "c.skip", []byte("same"))

	im := NewIgnoreManager(filepath.Join(t.TempDir(), "ignore"))
	require.NoError(t, im.LoadIgnorePatterns())
	require.NoError(t, im.AddPattern(`\.skip$`))

	finder, _ := newTestFinder(t)
	finder.SetIgnoreManager(im)
	result := finder.FindDuplicates(nil, []string{a, b, skipped}, 0, 0)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, b, result.Rows[0].Duplicate)
	assert.Equal(t, 1, result.Failures)
}

func TestFindDuplicates_Deterministic(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"q", "w", "e", "r", "t", "y"} {
		seed := byte(0)
		if name > "r" {
			seed = 1
		}
		paths = append(paths, writeTestFile(t, dir, name, patterned(200, seed)))
	}

	finder, _ := newTestFinder(t)
	first := finder.FindDuplicates(nil, paths, 8, 16)

	reversed := make([]string, len(paths))
	for i, path := range paths {
		reversed[len(paths)-1-i] = path
	}
	second := finder.FindDuplicates(nil, reversed, 8, 16)

	assert.Equal(t, first.Rows, second.Rows, "input order does not change the output")
	assert.Len(t, first.Rows, 4)
}

func TestFindDuplicates_Cancelled(t *testing.T) {
	dir := t.TempDir()
	a := writeTestFile(t, dir, "a", []byte("same"))
	b := writeTestFile(t, dir, "b", []byte("same"))

	shutdown := make(chan struct{})
	close(shutdown)

	finder, _ := newTestFinder(t)
	result := finder.FindDuplicates(shutdown, []string{a, b}, 0, 0)

	assert.True(t, result.Cancelled)
	assert.Empty(t, result.Rows)
}

func TestFindDuplicates_ReusesPersistedHashes(t *testing.T) {
	dir := t.TempDir()
	content := patterned(4096, 5)
	paths := []string{
		writeTestFile(t, dir, "a", content),
		writeTestFile(t, dir, "b", content),
		writeTestFile(t, dir, "c", patterned(4096, 6)),
	}

	defaultDir := t.TempDir()
	first := NewDuplicateFinder(NewCacheRouter(defaultDir), nil)
	result := first.FindDuplicates(nil, paths, 64, 256)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, 3, first.router.DefaultCache().Stats().Misses)
	assert.FileExists(t, filepath.Join(defaultDir, DefaultCacheFileName))

	second := NewDuplicateFinder(NewCacheRouter(defaultDir), nil)
	again := second.FindDuplicates(nil, paths, 64, 256)
	assert.Equal(t, result.Rows, again.Rows)

	stats := second.router.DefaultCache().Stats()
	assert.Equal(t, 3, stats.Hits)
	assert.Equal(t, 0, stats.Misses)
}

func TestFindDuplicates_SavesOnCancel(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "a", []byte("content"))

	finder, defaultDir := newTestFinder(t)
	_, err := finder.router.Resolve(path).Get(path, 1024)
	require.NoError(t, err)

	shutdown := make(chan struct{})
	close(shutdown)
	result := finder.FindDuplicates(shutdown, []string{path}, 0, 0)

	assert.True(t, result.Cancelled)
	assert.FileExists(t, filepath.Join(defaultDir, DefaultCacheFileName))
}

func TestPartition(t *testing.T) {
	keys := []string{"a", "b", "a", "c", "b", "a", "skip", "skip"}
	members := []int{0, 1, 2, 3, 4, 5, 6, 7}

	groups, cancelled := partition(nil, members, func(i int) (string, bool) {
		return keys[i], keys[i] != "skip"
	})

	assert.False(t, cancelled)
	assert.Equal(t, [][]int{{0, 2, 5}, {1, 4}}, groups)
}
