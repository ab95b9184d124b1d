package assets

import (
	"fmt"
	"hash/fnv"
	"os"
	"sync"
	"sync/atomic"

	"github.com/conneroisu/vellum/internal/digest"
	"github.com/conneroisu/vellum/internal/errors"
)

// TokenLength is the number of hex characters in a version token.
const TokenLength = 12

// tokenDomain separates version tokens from every other digest vellum
// computes.
var tokenDomain = digest.NewKey("vellum.asset.version")

const shardCount = 32

// TokenCache computes and caches version tokens for asset files.
//
// Lookups stat the file first; an entry whose recorded (mtime, size) matches
// is served without touching file content. On mismatch or miss the content
// is read and digested outside any lock, then stored last-writer-wins.
// Entries are keyed by absolute path and striped across shards so unrelated
// paths never contend.
type TokenCache struct {
	shards [shardCount]tokenShard

	hits          atomic.Int64
	misses        atomic.Int64
	invalidations atomic.Int64
}

type tokenShard struct {
	mu      sync.RWMutex
	entries map[string]tokenEntry
}

type tokenEntry struct {
	mtime int64
	size  int64
	token string
}

// CacheStats is a point-in-time snapshot of cache effectiveness counters.
type CacheStats struct {
	Hits          int64
	Misses        int64
	Invalidations int64
	Entries       int
}

// NewTokenCache creates an empty token cache.
func NewTokenCache() *TokenCache {
	c := &TokenCache{}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]tokenEntry)
	}
	return c
}

// TokenFor returns the version token for the file at the given absolute
// path. Unchanged files (same mtime and size as the cached entry) are served
// from cache without reading content. A file that has vanished yields an
// AssetVanishedError.
func (c *TokenCache) TokenFor(path string) (string, error) {
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewAssetVanishedError(path, err)
		}
		return "", fmt.Errorf("stat asset %s: %w", path, err)
	}

	mtime := stat.ModTime().UnixNano()
	size := stat.Size()

	shard := c.shard(path)
	shard.mu.RLock()
	entry, ok := shard.entries[path]
	shard.mu.RUnlock()

	if ok && entry.mtime == mtime && entry.size == size {
		c.hits.Add(1)
		return entry.token, nil
	}
	c.misses.Add(1)

	// Read and digest outside the lock; concurrent recomputes of the same
	// path race benignly and the last writer wins.
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewAssetVanishedError(path, err)
		}
		return "", fmt.Errorf("read asset %s: %w", path, err)
	}

	token := digest.HexN(tokenDomain, TokenLength, content, digest.Int64Bytes(mtime))

	shard.mu.Lock()
	shard.entries[path] = tokenEntry{mtime: mtime, size: size, token: token}
	shard.mu.Unlock()

	return token, nil
}

// Invalidate drops the cached token for one path. The watcher calls this on
// file change events; the next TokenFor recomputes.
func (c *TokenCache) Invalidate(path string) {
	shard := c.shard(path)
	shard.mu.Lock()
	_, existed := shard.entries[path]
	delete(shard.entries, path)
	shard.mu.Unlock()

	if existed {
		c.invalidations.Add(1)
	}
}

// Reset clears every cached entry.
func (c *TokenCache) Reset() {
	for i := range c.shards {
		shard := &c.shards[i]
		shard.mu.Lock()
		shard.entries = make(map[string]tokenEntry)
		shard.mu.Unlock()
	}
}

// Stats returns a snapshot of the cache counters.
func (c *TokenCache) Stats() CacheStats {
	entries := 0
	for i := range c.shards {
		shard := &c.shards[i]
		shard.mu.RLock()
		entries += len(shard.entries)
		shard.mu.RUnlock()
	}
	return CacheStats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalidations.Load(),
		Entries:       entries,
	}
}

func (c *TokenCache) shard(path string) *tokenShard {
	h := fnv.New32a()
	h.Write([]byte(path))
	return &c.shards[h.Sum32()%shardCount]
}
