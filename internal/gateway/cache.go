package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheEntry holds one cached raw result. Expiry is lazy: checked on read
// and swept in the background, never trusted at write time.
type cacheEntry struct {
	payload   []byte
	createdAt time.Time
	expiresAt time.Time
}

func (e cacheEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// resultCache is the per-tool result cache. Bounded by an LRU so a chatty
// tool cannot grow without limit; TTL comes from the tool's config.
type resultCache struct {
	entries *lru.Cache[string, cacheEntry]
	ttl     time.Duration
}

func newResultCache(size int, ttl time.Duration) (*resultCache, error) {
	entries, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}
	return &resultCache{entries: entries, ttl: ttl}, nil
}

// get returns the unexpired payload for key. Expired entries are evicted
// on the spot.
func (c *resultCache) get(key string, now time.Time) ([]byte, bool) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if entry.expired(now) {
		c.entries.Remove(key)
		return nil, false
	}
	return entry.payload, true
}

func (c *resultCache) put(key string, payload []byte, now time.Time) {
	c.entries.Add(key, cacheEntry{
		payload:   payload,
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	})
}

// sweep drops every expired entry. Called by the background sweeper; the
// lazy check in get keeps correctness even when the sweeper is disabled.
func (c *resultCache) sweep(now time.Time) int {
	removed := 0
	for _, key := range c.entries.Keys() {
		if entry, ok := c.entries.Peek(key); ok && entry.expired(now) {
			c.entries.Remove(key)
			removed++
		}
	}
	return removed
}

// cacheKey computes the sanitized cache key for a call: a hash over the
// tool id and the canonical JSON of the arguments with every
// secret-injected key removed. Removing those keys is what lets users
// holding different credentials share cache entries.
//
// This is the single place a cache key is derived. The gateway computes
// it before secret injection and carries the value through the rest of
// the call, so injected material can never leak into the key by
// construction.
func cacheKey(toolID string, args map[string]any, secretKeys []string) (string, error) {
	sanitized := make(map[string]any, len(args))
	for k, v := range args {
		sanitized[k] = v
	}
	for _, k := range secretKeys {
		delete(sanitized, k)
	}

	// encoding/json serializes map keys in sorted order, which makes the
	// encoding canonical for our purposes.
	encoded, err := json.Marshal(sanitized)
	if err != nil {
		return "", fmt.Errorf("failed to encode arguments for cache key: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(toolID))
	h.Write([]byte{0})
	h.Write(encoded)
	return hex.EncodeToString(h.Sum(nil)), nil
}
