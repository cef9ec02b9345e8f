package dupecache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// CacheRouter finds the hash cache responsible for a file: the cache of the nearest
// ancestor directory holding a cache file, or the default cache when there is none.
// Every directory visited on the way is remembered, so later lookups in the same
// subtree stop at the first directory already resolved.
type CacheRouter struct {
	cacheFileName string
	comparator    *ChunkedComparator
	algorithm     *HashAlgorithm
	saveWorkers   int

	defaultCache *HashCache
	roots        map[string]*HashCache
	resolved     map[string]*HashCache

	probes int // cache file existence checks, for tests and debug output
}

// RouterOption configures a CacheRouter
type RouterOption func(*CacheRouter)

// WithCacheFileName sets the reserved cache file name looked for in each directory
func WithCacheFileName(name string) RouterOption {
	return func(cr *CacheRouter) {
		cr.cacheFileName = name
	}
}

// WithComparator shares a comparator between all caches
func WithComparator(comparator *ChunkedComparator) RouterOption {
	return func(cr *CacheRouter) {
		cr.comparator = comparator
	}
}

// WithAlgorithm sets the digest used by every cache
func WithAlgorithm(algorithm *HashAlgorithm) RouterOption {
	return func(cr *CacheRouter) {
		cr.algorithm = algorithm
	}
}

// WithSaveWorkers bounds how many cache files SaveAll writes at once
func WithSaveWorkers(workers int) RouterOption {
	return func(cr *CacheRouter) {
		cr.saveWorkers = workers
	}
}

// NewCacheRouter creates a router whose default cache lives in defaultDir
func NewCacheRouter(defaultDir string, opts ...RouterOption) *CacheRouter {
	cr := &CacheRouter{
		cacheFileName: DefaultCacheFileName,
		saveWorkers:   DefaultSaveWorkers,
		roots:         make(map[string]*HashCache),
		resolved:      make(map[string]*HashCache),
	}
	for _, opt := range opts {
		opt(cr)
	}
	if cr.comparator == nil {
		cr.comparator = NewChunkedComparator(DefaultBufferSize)
	}
	if cr.algorithm == nil {
		cr.algorithm = DefaultHashAlgorithm()
	}
	if cr.saveWorkers < 1 {
		cr.saveWorkers = 1
	}

	cr.defaultCache = NewHashCache("", filepath.Join(defaultDir, cr.cacheFileName), cr.comparator, cr.algorithm)
	return cr
}

// DefaultCache returns the root-less fallback cache
func (cr *CacheRouter) DefaultCache() *HashCache {
	return cr.defaultCache
}

// Resolve returns the cache responsible for filePath
func (cr *CacheRouter) Resolve(filePath string) *HashCache {
	dir := filepath.Dir(filepath.Clean(filePath))

	var visited []string
	var found *HashCache
	for {
		if cache, ok := cr.resolved[dir]; ok {
			found = cache
			break
		}

		cr.probes++
		if fileExists(filepath.Join(dir, cr.cacheFileName)) {
			found = cr.openRoot(dir)
			break
		}

		visited = append(visited, dir)
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if found == nil {
		found = cr.defaultCache
	}
	for _, d := range visited {
		cr.resolved[d] = found
	}

	debugLog("router", "%s -> %s (%d directories memoised)", filePath, found.CacheFile(), len(visited))
	return found
}

// CacheFor returns the cache responsible for files directly inside dir
func (cr *CacheRouter) CacheFor(dir string) *HashCache {
	return cr.Resolve(filepath.Join(dir, cr.cacheFileName))
}

// openRoot instantiates and loads the cache rooted at dir
func (cr *CacheRouter) openRoot(dir string) *HashCache {
	cacheFile := filepath.Join(dir, cr.cacheFileName)
	if cacheFile == cr.defaultCache.CacheFile() {
		cr.resolved[dir] = cr.defaultCache
		return cr.defaultCache
	}

	cache := NewHashCache(dir, cacheFile, cr.comparator, cr.algorithm)
	if err := cache.Load(); err != nil {
		Warnf("hash cache for %s: %v", dir, err)
	}
	VerboseLog(2, "opened hash cache root %s", dir)

	cr.roots[dir] = cache
	cr.resolved[dir] = cache
	return cache
}

// Caches returns the default cache followed by every root cache opened so far, by root
func (cr *CacheRouter) Caches() []*HashCache {
	roots := make([]string, 0, len(cr.roots))
	for root := range cr.roots {
		roots = append(roots, root)
	}
	sort.Strings(roots)

	caches := make([]*HashCache, 0, len(roots)+1)
	caches = append(caches, cr.defaultCache)
	for _, root := range roots {
		caches = append(caches, cr.roots[root])
	}
	return caches
}

// SaveAll persists every cache with changes. All caches are attempted; the
// returned error joins every failure.
func (cr *CacheRouter) SaveAll() error {
	var mu sync.Mutex
	var errs []error

	var g errgroup.Group
	g.SetLimit(cr.saveWorkers)
	for _, cache := range cr.Caches() {
		g.Go(func() error {
			if err := cache.Save(); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("failed to save %s: %w", cache.CacheFile(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// InitRoot makes dir a cache root by writing an empty cache file into it, unless one
// exists already. Resolutions remembered so far are forgotten.
func (cr *CacheRouter) InitRoot(dir string) (*HashCache, error) {
	if !filepath.IsAbs(dir) {
		return nil, fmt.Errorf("%s: %w", dir, ErrNotAbsolute)
	}
	dir = filepath.Clean(dir)

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	cr.resolved = make(map[string]*HashCache)
	if cache, ok := cr.roots[dir]; ok {
		cr.resolved[dir] = cache
		return cache, nil
	}

	cache := cr.openRoot(dir)
	if !fileExists(cache.CacheFile()) {
		cache.markDirty()
		if err := cache.Save(); err != nil {
			return nil, err
		}
	}
	return cache, nil
}
