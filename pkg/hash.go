package dupecache

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
)

// HashAlgorithm represents a hash algorithm configuration
type HashAlgorithm struct {
	Name    string
	TypeID  uint16
	Size    int
	NewFunc func() hash.Hash
}

// GetHashAlgorithm returns the hash algorithm configuration for the given name
func GetHashAlgorithm(name string) (*HashAlgorithm, error) {
	switch strings.ToLower(name) {
	case "sha1":
		return &HashAlgorithm{
			Name:    "sha1",
			TypeID:  HashTypeSHA1,
			Size:    HashSizeSHA1,
			NewFunc: func() hash.Hash { return sha1.New() },
		}, nil
	case "sha256":
		return &HashAlgorithm{
			Name:    "sha256",
			TypeID:  HashTypeSHA256,
			Size:    HashSizeSHA256,
			NewFunc: func() hash.Hash { return sha256.New() },
		}, nil
	case "sha512":
		return &HashAlgorithm{
			Name:    "sha512",
			TypeID:  HashTypeSHA512,
			Size:    HashSizeSHA512,
			NewFunc: func() hash.Hash { return sha512.New() },
		}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", name)
	}
}

// GetHashAlgorithmByType returns the hash algorithm configuration for the given type ID
func GetHashAlgorithmByType(typeID uint16) (*HashAlgorithm, error) {
	switch typeID {
	case HashTypeSHA1, HashTypeSHA256, HashTypeSHA512:
		return GetHashAlgorithm(HashTypeName(typeID))
	default:
		return nil, fmt.Errorf("unsupported hash type ID: %d", typeID)
	}
}

// DefaultHashAlgorithm returns SHA-256, the algorithm used when nothing is configured
func DefaultHashAlgorithm() *HashAlgorithm {
	algorithm, _ := GetHashAlgorithm("sha256")
	return algorithm
}

// sampleWindow returns the byte count actually hashed for a file of the given size.
// Files no larger than two samples are hashed whole.
func sampleWindow(size, sampleSize int64) int64 {
	if hasDistinctTail(size, sampleSize) {
		return 2 * sampleSize
	}
	return size
}

// hasDistinctTail reports size > 2*sampleSize without overflowing on huge samples
func hasDistinctTail(size, sampleSize int64) bool {
	return sampleSize < size && size-sampleSize > sampleSize
}

// HashSampleToHexString hashes the head and tail samples of an open file
// (or the whole file when it is small) and returns lowercase hex.
func (cc *ChunkedComparator) HashSampleToHexString(src io.ReaderAt, size, sampleSize int64, algorithm *HashAlgorithm) (string, error) {
	hasher := algorithm.NewFunc()
	if err := cc.DigestSample(hasher, src, size, sampleSize); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
