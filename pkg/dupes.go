package dupecache

import (
	"errors"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
)

// ErrInterrupted is reported when a run stops on the shutdown channel
var ErrInterrupted = errors.New("duplicate search interrupted by shutdown")

// DuplicateRow pairs an original with one byte-identical duplicate
type DuplicateRow struct {
	Original  string `json:"original"`
	Duplicate string `json:"duplicate"`
	Hash      string `json:"hash"`
	Size      int64  `json:"size"`
}

// FindResult is the outcome of one duplicate search
type FindResult struct {
	Rows      []DuplicateRow `json:"rows"`
	Failures  int            `json:"failures"`
	Cancelled bool           `json:"cancelled"`
}

// candidate is one file under consideration, owned by a single FindDuplicates run
type candidate struct {
	path string
	size int64
	hash string
}

// DuplicateFinder groups candidate files into byte-identical sets by refining
// size groups, then partial-hash groups, then sampled-content groups
type DuplicateFinder struct {
	router        *CacheRouter
	comparator    *ChunkedComparator
	ignoreManager *IgnoreManager
}

// NewDuplicateFinder creates a finder hashing through router and comparing with comparator
func NewDuplicateFinder(router *CacheRouter, comparator *ChunkedComparator) *DuplicateFinder {
	if comparator == nil {
		comparator = router.comparator
	}
	return &DuplicateFinder{
		router:     router,
		comparator: comparator,
	}
}

// SetIgnoreManager excludes candidates matching the manager's patterns
func (df *DuplicateFinder) SetIgnoreManager(im *IgnoreManager) {
	df.ignoreManager = im
}

// interrupted polls the shutdown channel without blocking
func interrupted(shutdownChan <-chan struct{}) bool {
	select {
	case <-shutdownChan:
		return true
	default:
		return false
	}
}

// partition splits members into groups sharing a key, in order of first appearance.
// Members whose key cannot be computed are dropped, as are groups of one.
func partition[K comparable](shutdownChan <-chan struct{}, members []int, key func(int) (K, bool)) ([][]int, bool) {
	slots := make(map[K]int)
	var groups [][]int

	for _, member := range members {
		if interrupted(shutdownChan) {
			return nil, true
		}

		k, ok := key(member)
		if !ok {
			continue
		}

		slot, seen := slots[k]
		if !seen {
			slot = len(groups)
			slots[k] = slot
			groups = append(groups, nil)
		}
		groups[slot] = append(groups[slot], member)
	}

	multiples := groups[:0]
	for _, group := range groups {
		if len(group) > 1 {
			multiples = append(multiples, group)
		}
	}
	return multiples, false
}

// FindDuplicates reports every duplicate among paths. Files are grouped by size, then by
// a hash of hashSampleSize bytes at head and tail, then by comparing contentSampleSize
// bytes at head and tail. Within each group of identical files the lexicographically
// smallest path is the original. Invalid paths, repeated paths, ignored paths and files
// that could not be read are counted in Failures. Touched caches are saved before
// returning, also when the run is interrupted.
func (df *DuplicateFinder) FindDuplicates(shutdownChan <-chan struct{}, paths []string, hashSampleSize, contentSampleSize int64) *FindResult {
	defer VerboseEnter()()

	if hashSampleSize <= 0 {
		hashSampleSize = DefaultHashSampleSize
	}
	if contentSampleSize <= 0 {
		contentSampleSize = DefaultContentSampleSize
	}

	result := &FindResult{}
	defer func() {
		if err := df.router.SaveAll(); err != nil {
			Warnf("hash cache not saved: %v", err)
		}
		sort.Slice(result.Rows, func(i, j int) bool {
			if result.Rows[i].Original != result.Rows[j].Original {
				return result.Rows[i].Original < result.Rows[j].Original
			}
			return result.Rows[i].Duplicate < result.Rows[j].Duplicate
		})
		if result.Cancelled {
			Warnf("%v after %d rows", ErrInterrupted, len(result.Rows))
		}
	}()

	candidates, members := df.collectCandidates(shutdownChan, paths, result)
	if result.Cancelled {
		return result
	}

	sizeGroups, cancelled := partition(shutdownChan, members, func(i int) (int64, bool) {
		return candidates[i].size, true
	})
	if cancelled {
		result.Cancelled = true
		return result
	}
	VerboseLog(1, "%d candidates, %d size groups to hash", len(candidates), len(sizeGroups))

	for _, sizeGroup := range sizeGroups {
		hashGroups, cancelled := partition(shutdownChan, sizeGroup, func(i int) (string, bool) {
			return df.partialHash(&candidates[i], hashSampleSize, result)
		})
		if cancelled {
			result.Cancelled = true
			return result
		}

		for _, hashGroup := range hashGroups {
			if df.emitContentGroups(shutdownChan, candidates, hashGroup, contentSampleSize, result) {
				result.Cancelled = true
				return result
			}
		}
	}

	VerboseLog(1, "%d duplicates found, %d failed or ignored", len(result.Rows), result.Failures)
	return result
}

// collectCandidates keeps absolute, existing, regular, not ignored, not repeated paths
func (df *DuplicateFinder) collectCandidates(shutdownChan <-chan struct{}, paths []string, result *FindResult) ([]candidate, []int) {
	candidates := make([]candidate, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	var totalBytes uint64

	for _, path := range paths {
		if interrupted(shutdownChan) {
			result.Cancelled = true
			return nil, nil
		}

		if filepath.IsAbs(path) {
			path = filepath.Clean(path)
		}
		if _, dup := seen[path]; dup {
			VerboseLog(2, "repeated path %s", path)
			result.Failures++
			continue
		}
		seen[path] = struct{}{}

		if df.ignoreManager != nil && df.ignoreManager.ShouldIgnore(path) {
			VerboseLog(2, "ignored path %s", path)
			result.Failures++
			continue
		}

		state, err := validateCandidate(path)
		if err != nil {
			VerboseLog(2, "rejected candidate: %v", err)
			result.Failures++
			continue
		}

		candidates = append(candidates, candidate{path: path, size: state.Size})
		totalBytes += uint64(state.Size)
	}

	VerboseLog(1, "%d of %d paths accepted (%s)", len(candidates), len(paths), humanize.IBytes(totalBytes))

	members := make([]int, len(candidates))
	for i := range members {
		members[i] = i
	}
	return candidates, members
}

// partialHash fills in the candidate's hash through its cache
func (df *DuplicateFinder) partialHash(c *candidate, sampleSize int64, result *FindResult) (string, bool) {
	if c.hash != "" {
		return c.hash, true
	}

	hash, err := df.router.Resolve(c.path).Get(c.path, sampleSize)
	if err != nil {
		Warnf("partial hash unavailable: %v", err)
		result.Failures++
		return "", false
	}

	c.hash = hash
	return hash, true
}

// emitContentGroups splits one hash group into byte-identical sets and appends a row per
// duplicate. It returns true when interrupted.
func (df *DuplicateFinder) emitContentGroups(shutdownChan <-chan struct{}, candidates []candidate, hashGroup []int, sampleSize int64, result *FindResult) bool {
	keys := make(map[int]contentKey, len(hashGroup))
	buckets, cancelled := partition(shutdownChan, hashGroup, func(i int) (uint64, bool) {
		key, err := newContentKey(df.comparator, candidates[i].path, candidates[i].size, sampleSize)
		if err != nil {
			Warnf("content key unavailable: %v", err)
			result.Failures++
			return 0, false
		}
		keys[i] = key
		return key.bucket, true
	})
	if cancelled {
		return true
	}

	for _, bucket := range buckets {
		classes, cancelled := df.equalClasses(shutdownChan, bucket, keys)
		if cancelled {
			return true
		}

		for _, class := range classes {
			paths := make([]string, len(class))
			for n, i := range class {
				paths[n] = candidates[i].path
			}
			sort.Strings(paths)

			original := candidates[class[0]]
			for _, duplicate := range paths[1:] {
				result.Rows = append(result.Rows, DuplicateRow{
					Original:  paths[0],
					Duplicate: duplicate,
					Hash:      original.hash,
					Size:      original.size,
				})
			}
		}
	}

	return false
}

// equalClasses splits one bucket into classes of byte-identical members. Each member is
// compared against the first member of every class so far; a read failure leaves it alone.
func (df *DuplicateFinder) equalClasses(shutdownChan <-chan struct{}, bucket []int, keys map[int]contentKey) ([][]int, bool) {
	var classes [][]int

	for _, member := range bucket {
		if interrupted(shutdownChan) {
			return nil, true
		}

		placed := false
		for n, class := range classes {
			equal, err := keys[member].equal(df.comparator, keys[class[0]])
			if err != nil {
				Warnf("content comparison failed: %v", err)
				continue
			}
			if equal {
				classes[n] = append(class, member)
				placed = true
				break
			}
		}
		if !placed {
			classes = append(classes, []int{member})
		}
	}

	multiples := classes[:0]
	for _, class := range classes {
		if len(class) > 1 {
			multiples = append(multiples, class)
		}
	}
	return multiples, false
}
