package dupecache

import (
	"strings"

	zcsl "github.com/mattkeenan/zerocopyskiplist"
)

// sampleHash is one (sample size, hash) pair held by a cache record
type sampleHash struct {
	SampleSize int64
	Hash       string
}

// cacheRecord is everything a hash cache knows about one file
type cacheRecord struct {
	Path    string
	Size    int64
	ModTime int64
	Samples []sampleHash
}

// matches reports whether the record still describes the file as it is on disk
func (cr *cacheRecord) matches(state fileState) bool {
	return cr.Size == state.Size && cr.ModTime == state.ModTime
}

// lookup returns the hash stored for the given effective sample size
func (cr *cacheRecord) lookup(sampleSize int64) (string, bool) {
	for _, sample := range cr.Samples {
		if sample.SampleSize == sampleSize {
			return sample.Hash, true
		}
	}
	return "", false
}

// withSample returns a copy of the record with one more sample appended
func (cr *cacheRecord) withSample(sampleSize int64, hash string) *cacheRecord {
	samples := make([]sampleHash, len(cr.Samples), len(cr.Samples)+1)
	copy(samples, cr.Samples)
	return &cacheRecord{
		Path:    cr.Path,
		Size:    cr.Size,
		ModTime: cr.ModTime,
		Samples: append(samples, sampleHash{SampleSize: sampleSize, Hash: hash}),
	}
}

// recordTable keeps cache records sorted by absolute path, each tagged with the
// context it came from (CacheContext when loaded, ScanContext when computed this run)
type recordTable struct {
	skiplist *zcsl.ZeroCopySkiplist[cacheRecord, string, string]
}

// newRecordTable creates an empty record table
func newRecordTable() *recordTable {
	getKeyFromItem := func(record *cacheRecord) string {
		return record.Path
	}

	// Approximate serialised size, used by the skiplist for its own accounting
	getItemSize := func(record *cacheRecord) int {
		return len(record.Path) + 32 + len(record.Samples)*80
	}

	skiplist := zcsl.MakeZeroCopySkiplist[cacheRecord, string, string](
		16,
		getKeyFromItem,
		getItemSize,
		strings.Compare,
	)

	return &recordTable{skiplist: skiplist}
}

// Find returns the record for path and its context, or nil
func (rt *recordTable) Find(path string) (*cacheRecord, string) {
	itemPtr, context := rt.skiplist.Find(path)
	if itemPtr == nil {
		return nil, ""
	}
	return itemPtr.Item(), context
}

// Put stores record under its path, replacing whatever was there
func (rt *recordTable) Put(record *cacheRecord, context string) {
	rt.skiplist.Delete(record.Path)
	rt.skiplist.Insert(record, context)
}

// Delete removes the record for path
func (rt *recordTable) Delete(path string) bool {
	return rt.skiplist.Delete(path)
}

// ForEach iterates through all records in path order
func (rt *recordTable) ForEach(callback func(*cacheRecord, string) bool) {
	for current := rt.skiplist.First(); current != nil; current = current.Next() {
		if !callback(current.Item(), current.Context()) {
			break
		}
	}
}

// Length returns the number of records
func (rt *recordTable) Length() int {
	return rt.skiplist.Length()
}

// CountContext returns how many records carry the given context
func (rt *recordTable) CountContext(context string) int {
	count := 0
	rt.ForEach(func(_ *cacheRecord, recordContext string) bool {
		if recordContext == context {
			count++
		}
		return true
	})
	return count
}
