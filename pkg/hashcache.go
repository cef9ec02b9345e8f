package dupecache

import (
	"errors"
	"fmt"
	"os"
)

// HashCache maps absolute file paths to partial hashes, keyed on the file's size and
// modification time. A cache is scoped to a root directory, where its file lives;
// the default cache has no root and stores every path absolute.
type HashCache struct {
	root       string
	cacheFile  string
	algorithm  *HashAlgorithm
	comparator *ChunkedComparator
	records    *recordTable

	loaded bool
	dirty  bool
	hits   int
	misses int
}

// CacheStats summarises a cache's contents and this run's activity
type CacheStats struct {
	Records  int // records held
	Computed int // records computed or extended this run
	Hits     int // Get calls answered from a record
	Misses   int // Get calls that had to read the file
}

// NewHashCache creates a cache for root (empty for the default cache) persisted at cacheFile.
// Nothing is read from disk until Load or the first Get.
func NewHashCache(root, cacheFile string, comparator *ChunkedComparator, algorithm *HashAlgorithm) *HashCache {
	if comparator == nil {
		comparator = NewChunkedComparator(DefaultBufferSize)
	}
	if algorithm == nil {
		algorithm = DefaultHashAlgorithm()
	}

	return &HashCache{
		root:       root,
		cacheFile:  cacheFile,
		algorithm:  algorithm,
		comparator: comparator,
		records:    newRecordTable(),
	}
}

// Root returns the directory the cache is scoped to, empty for the default cache
func (hc *HashCache) Root() string {
	return hc.root
}

// CacheFile returns where the cache is persisted
func (hc *HashCache) CacheFile() string {
	return hc.cacheFile
}

// Load reads the cache file once. A missing file is an empty cache; a file in another
// format is reported and also leaves the cache empty.
func (hc *HashCache) Load() error {
	if hc.loaded {
		return nil
	}
	hc.loaded = true

	data, err := os.ReadFile(hc.cacheFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read cache file %s: %w", hc.cacheFile, err)
	}

	records, err := decodeCacheTable(data, hc.root, hc.algorithm.TypeID)
	for _, record := range records {
		hc.records.Put(record, CacheContext)
	}
	if err != nil {
		return fmt.Errorf("failed to load cache file %s: %w", hc.cacheFile, err)
	}

	VerboseLog(2, "loaded %d cache records from %s", len(records), hc.cacheFile)
	return nil
}

// ensureLoaded loads the cache on first use; a broken cache file only costs speed
func (hc *HashCache) ensureLoaded() {
	if err := hc.Load(); err != nil {
		Warnf("hash cache: %v", err)
	}
}

// Get returns the hex hash of path sampled with sampleSize bytes at head and tail.
// A record is reused only while the file's size and mtime are unchanged.
func (hc *HashCache) Get(path string, sampleSize int64) (string, error) {
	if sampleSize <= 0 {
		return "", fmt.Errorf("invalid sample size %d", sampleSize)
	}
	hc.ensureLoaded()

	state, err := statFile(path)
	if err != nil {
		return "", err
	}
	window := sampleWindow(state.Size, sampleSize)

	record, _ := hc.records.Find(path)
	if record != nil && !record.matches(state) {
		record = nil
	}
	if record != nil {
		if hash, ok := record.lookup(window); ok {
			hc.hits++
			debugLog("cache", "hit %s (%d bytes sampled)", path, window)
			return hash, nil
		}
	}

	hc.misses++
	debugLog("cache", "miss %s (%d bytes sampled)", path, window)
	hash, err := hc.computeHash(path, state, sampleSize)
	if err != nil {
		return "", err
	}

	if record != nil {
		record = record.withSample(window, hash)
	} else {
		record = &cacheRecord{
			Path:    path,
			Size:    state.Size,
			ModTime: state.ModTime,
			Samples: []sampleHash{{SampleSize: window, Hash: hash}},
		}
	}
	hc.records.Put(record, ScanContext)
	hc.dirty = true

	return hash, nil
}

// computeHash reads the sampled bytes of path and hashes them
func (hc *HashCache) computeHash(path string, state fileState, sampleSize int64) (string, error) {
	file, err := openSequential(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash, err := hc.comparator.HashSampleToHexString(file, state.Size, sampleSize, hc.algorithm)
	if err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hash, nil
}

// Prune drops records whose file is gone or has changed since it was hashed
func (hc *HashCache) Prune() int {
	hc.ensureLoaded()

	var stale []string
	hc.records.ForEach(func(record *cacheRecord, _ string) bool {
		state, err := statFile(record.Path)
		if err != nil || !record.matches(state) {
			stale = append(stale, record.Path)
		}
		return true
	})

	for _, path := range stale {
		hc.records.Delete(path)
	}
	if len(stale) > 0 {
		hc.dirty = true
	}
	return len(stale)
}

// Save writes the cache file if anything changed since it was loaded
func (hc *HashCache) Save() error {
	if !hc.dirty {
		return nil
	}

	preamble, body, err := encodeCacheTable(hc.records, hc.root, hc.algorithm.TypeID)
	if err != nil {
		return err
	}
	if err := writeCacheFile(hc.cacheFile, preamble, body); err != nil {
		return err
	}

	VerboseLog(2, "saved %d cache records to %s", hc.records.Length(), hc.cacheFile)
	hc.dirty = false
	return nil
}

// markDirty forces the next Save to write the file
func (hc *HashCache) markDirty() {
	hc.dirty = true
}

// Stats returns record counts and this run's hit/miss counters
func (hc *HashCache) Stats() CacheStats {
	return CacheStats{
		Records:  hc.records.Length(),
		Computed: hc.records.CountContext(ScanContext),
		Hits:     hc.hits,
		Misses:   hc.misses,
	}
}
