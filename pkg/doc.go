// Package dupecache finds byte-identical files among a list of candidate paths,
// reusing partial hashes persisted in per-directory cache files.
//
// # Core API
//
// A CacheRouter maps every file to the cache of its nearest ancestor directory holding
// a cache file, or to a root-less default cache:
//
//	router := dupecache.NewCacheRouter("/var/cache/dupecache")
//	finder := dupecache.NewDuplicateFinder(router, nil)
//
// # Finding Duplicates
//
// Candidates are grouped by size, then by a hash of their head and tail, then by
// comparing their head and tail bytes:
//
//	result := finder.FindDuplicates(shutdownChan, paths, 1<<20, 16<<20)
//	for _, row := range result.Rows {
//		fmt.Printf("%s\t%s\n", row.Original, row.Duplicate)
//	}
//
// Closing shutdownChan stops the search early; caches are still saved.
//
// # Cache Roots
//
// A directory becomes a cache root once it holds a cache file:
//
//	cache, err := router.InitRoot("/data/photos")
//
// Paths under a root are stored relative to it, so the root can be moved
// without losing its cache.
//
// # Configuration
//
// Settings live in an INI file loaded with LoadConfig; Options turns them into a
// router and finder:
//
//	cfg, err := dupecache.LoadConfig(path)
//	opts, err := cfg.Options()
//	router := opts.NewRouter()
//	finder, err := opts.NewFinder(router)
package dupecache
