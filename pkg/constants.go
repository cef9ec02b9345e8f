package dupecache

import (
	"strings"
)

// Context constants for record table entries
const (
	CacheContext = "cache" // record loaded from a cache file
	ScanContext  = "scan"  // record computed or refreshed during this run
)

// File constants
const (
	DefaultCacheFileName = "ft-cache"
	TempCacheFile        = ".%s-%d.tmp"
)

// Cache file preamble constants
const (
	PreambleSize          = 12 // signature(4) + version(4) + hash_type(2) + flags(2)
	CurrentCacheVersion   = 1  // Current cache file format version
	PathKindRelative      = "R"
	PathKindAbsolute      = "A"
	cacheColumnPathType   = "pathType"
	cacheColumnFilePath   = "filePath"
	cacheColumnFileSize   = "fileSize"
	cacheColumnFileTime   = "fileTime"
	cacheColumnHashSize   = "hashSize#"
	cacheColumnHashCode   = "hashCode#"
	cacheFixedColumnCount = 4
)

// CacheSignature identifies a cache file
var CacheSignature = [4]byte{'f', 't', 'c', 'h'}

// Hash type constants
const (
	HashTypeSHA1   uint16 = 1 // SHA-1 (20 bytes)
	HashTypeSHA256 uint16 = 2 // SHA-256 (32 bytes)
	HashTypeSHA512 uint16 = 3 // SHA-512 (64 bytes)
)

// HashTypeName returns the human-readable name for a hash type
func HashTypeName(hashType uint16) string {
	switch hashType {
	case HashTypeSHA1:
		return "sha1"
	case HashTypeSHA256:
		return "sha256"
	case HashTypeSHA512:
		return "sha512"
	default:
		return "unknown"
	}
}

// HashTypeFromName returns the hash type constant from a name (case-insensitive)
func HashTypeFromName(name string) (uint16, bool) {
	switch strings.ToLower(name) {
	case "sha1":
		return HashTypeSHA1, true
	case "sha256":
		return HashTypeSHA256, true
	case "sha512":
		return HashTypeSHA512, true
	default:
		return 0, false
	}
}

// Hash size constants
const (
	HashSizeSHA1   = 20 // SHA-1 hash size in bytes
	HashSizeSHA256 = 32 // SHA-256 hash size in bytes
	HashSizeSHA512 = 64 // SHA-512 hash size in bytes
)

// Size defaults, all in bytes
const (
	DefaultBufferSize        = 10 * 1024 * 1024
	DefaultHashSampleSize    = 1024 * 1024
	DefaultContentSampleSize = 16 * 1024 * 1024
	DefaultSaveWorkers       = 4
)
