package hasher

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"sync"

	"scanaudit/logger"

	"github.com/cespare/xxhash/v2"
	"lukechampine.com/blake3"
)

const (
	hashBufferSmallSize      = 32 * 1024
	hashBufferLargeSize      = 128 * 1024
	hashLargeBufferThreshold = 256 * 1024
)

var hashBufferSmallPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, hashBufferSmallSize)
		return &buf
	},
}

var hashBufferLargePool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, hashBufferLargeSize)
		return &buf
	},
}

type hasherEntry struct {
	name string
	h    hash.Hash
}

// Supported reports whether algo names a digest this package can compute.
func Supported(algo string) bool {
	return newHash(algo) != nil
}

func newHash(algo string) hash.Hash {
	switch algo {
	case "md5":
		return md5.New()
	case "sha1":
		return sha1.New()
	case "sha256":
		return sha256.New()
	case "blake3":
		return blake3.New(32, nil)
	case "xxh64":
		return xxhash.New()
	default:
		return nil
	}
}

func selectHashers(algorithms []string) []hasherEntry {
	hashers := make([]hasherEntry, 0, len(algorithms))
	seen := make(map[string]struct{}, len(algorithms))
	for _, algo := range algorithms {
		if _, ok := seen[algo]; ok {
			continue
		}
		h := newHash(algo)
		if h == nil {
			logger.Warnf("Unsupported hash algorithm: %s", algo)
			continue
		}
		seen[algo] = struct{}{}
		hashers = append(hashers, hasherEntry{name: algo, h: h})
	}
	return hashers
}

// ComputeHashes fingerprints the audit log at path in a single read.
func ComputeHashes(path string, algorithms []string) map[string]string {
	file, err := os.Open(path)
	if err != nil {
		logger.Warnf("Failed to open file for hashing %s: %v", path, err)
		return make(map[string]string)
	}
	defer file.Close()

	large := false
	if info, statErr := file.Stat(); statErr == nil && info.Size() >= hashLargeBufferThreshold {
		large = true
	}
	return computeHashes(file, path, algorithms, large)
}

// ComputeReaderHashes fingerprints everything read from r. name is only used in log messages.
func ComputeReaderHashes(r io.Reader, name string, algorithms []string) map[string]string {
	return computeHashes(r, name, algorithms, false)
}

func computeHashes(r io.Reader, name string, algorithms []string, large bool) map[string]string {
	hashes := make(map[string]string, len(algorithms))
	hashers := selectHashers(algorithms)
	if len(hashers) == 0 {
		return hashes
	}

	bufferPool := &hashBufferSmallPool
	if large {
		bufferPool = &hashBufferLargePool
	}
	bufferPtr := bufferPool.Get().(*[]byte)
	buffer := *bufferPtr
	defer bufferPool.Put(bufferPtr)

	for {
		n, readErr := r.Read(buffer)
		if n > 0 {
			chunk := buffer[:n]
			for i := range hashers {
				if _, err := hashers[i].h.Write(chunk); err != nil {
					logger.Warnf("Failed to update hash %s for %s: %v", hashers[i].name, name, err)
				}
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				logger.Warnf("Failed to compute hashes for %s: %v", name, readErr)
				return hashes
			}
			break
		}
	}

	for i := range hashers {
		hashes[hashers[i].name] = hex.EncodeToString(hashers[i].h.Sum(nil))
	}
	return hashes
}
