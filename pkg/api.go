package dupecache

import (
	"fmt"
	"os"
	"path/filepath"
)

// This file turns a Config into ready-to-use engine objects

// Options is a validated, parsed configuration
type Options struct {
	HashSampleSize    int64
	ContentSampleSize int64
	BufferSize        int
	SaveWorkers       int
	Algorithm         *HashAlgorithm
	CacheFileName     string
	DefaultDir        string   // absolute
	IgnoreFile        string   // empty for none
	IgnorePatterns    []string // extra patterns on top of the ignore file
}

// Options parses and validates the configuration. An empty default cache directory
// means the working directory.
func (c *Config) Options() (*Options, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	all := c.GetAllConfig()

	hashSize, _ := ParseHumanSize(all.Sample.HashSize)
	contentSize, _ := ParseHumanSize(all.Sample.ContentSize)
	bufferSize, _ := ParseHumanSize(all.Performance.BufferSize)

	algorithm, err := GetHashAlgorithm(all.Hash.Default)
	if err != nil {
		return nil, err
	}

	defaultDir := all.Cache.DefaultDir
	if defaultDir == "" {
		if defaultDir, err = os.Getwd(); err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}
	if defaultDir, err = filepath.Abs(defaultDir); err != nil {
		return nil, fmt.Errorf("invalid default cache directory: %w", err)
	}

	return &Options{
		HashSampleSize:    hashSize,
		ContentSampleSize: contentSize,
		BufferSize:        int(bufferSize),
		SaveWorkers:       all.Performance.SaveWorkers,
		Algorithm:         algorithm,
		CacheFileName:     all.Cache.FileName,
		DefaultDir:        defaultDir,
		IgnoreFile:        all.Ignore.File,
	}, nil
}

// NewRouter builds a cache router sharing one comparator between its caches
func (o *Options) NewRouter() *CacheRouter {
	return NewCacheRouter(o.DefaultDir,
		WithCacheFileName(o.CacheFileName),
		WithComparator(NewChunkedComparator(o.BufferSize)),
		WithAlgorithm(o.Algorithm),
		WithSaveWorkers(o.SaveWorkers),
	)
}

// NewFinder builds a finder over router, loading the ignore file and extra
// patterns when any are configured
func (o *Options) NewFinder(router *CacheRouter) (*DuplicateFinder, error) {
	finder := NewDuplicateFinder(router, nil)

	im := NewIgnoreManager(o.IgnoreFile)
	if err := im.LoadIgnorePatterns(); err != nil {
		return nil, err
	}
	for _, pattern := range o.IgnorePatterns {
		if err := im.AddPattern(pattern); err != nil {
			return nil, err
		}
	}
	if !im.HasPatterns() {
		return finder, nil
	}

	if path := im.GetIgnoreFilePath(); path != "" {
		VerboseLog(1, "ignore patterns from %s", path)
	}
	finder.SetIgnoreManager(im)
	return finder, nil
}

// ApplyVerboseConfig sets the log level and debug flags, command-line values winning
// over configured ones
func ApplyVerboseConfig(vc *VerboseConfig, level int, debug string) {
	if level == 0 {
		level = vc.Level
	}
	SetVerboseLevel(level)

	if debug == "" {
		debug = vc.Debug
	}
	if debug != "" {
		SetDebugFlags(debug)
		VerboseLog(1, "debug flags: %s", debug)
	}
}
