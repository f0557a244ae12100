package docproc

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// Fingerprint computes the deterministic cache key for a request: a sha256
// over the raw content bytes concatenated with a canonical JSON serialization
// of the operation flags and normalized options. Two logically identical
// requests always fingerprint identically; fingerprinting is pure.
func Fingerprint(data []byte, req Request) string {
	keyData := struct {
		Anonymize   bool    `json:"anonymize"`
		RemovePII   bool    `json:"remove_pii"`
		ExtractJSON bool    `json:"extract_json"`
		Options     Options `json:"options"`
	}{
		Anonymize:   req.Anonymize,
		RemovePII:   req.RemovePII,
		ExtractJSON: req.ExtractJSON,
		Options:     req.Options.Normalize(),
	}

	// Struct marshalling has a fixed field order, so this is canonical.
	jsonData, _ := json.Marshal(keyData)

	hasher := sha256.New()
	hasher.Write(data)
	hasher.Write(jsonData)
	return hex.EncodeToString(hasher.Sum(nil))
}

// Cache is a bounded, process-local LRU from fingerprint to finalized result.
// A capacity of zero disables caching entirely.
type Cache struct {
	mu    sync.Mutex
	max   int
	order *list.List // front = most recently used
	items map[string]*list.Element
}

type cacheEntry struct {
	key    string
	result Result
}

// NewCache creates a Cache holding at most max entries.
func NewCache(max int) *Cache {
	return &Cache{
		max:   max,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

// Get returns the cached result for key, marking it most recently used.
// The returned metadata is a deep copy with CacheHit forced true; every other
// field, including historical timing, is preserved verbatim.
func (c *Cache) Get(key string) (Result, bool) {
	if c == nil || c.max == 0 || key == "" {
		return Result{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return Result{}, false
	}
	c.order.MoveToFront(elem)

	stored := elem.Value.(*cacheEntry).result
	out := stored
	out.Metadata = stored.Metadata.Clone()
	out.Metadata.CacheHit = true
	return out, true
}

// Put stores a result under key, evicting least-recently-used entries one at
// a time until the size bound holds. The stored metadata is deep-copied with
// CacheHit false so later mutation of the caller's result cannot corrupt it.
func (c *Cache) Put(key string, result Result) {
	if c == nil || c.max == 0 || key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := result
	stored.Metadata = result.Metadata.Clone()
	stored.Metadata.CacheHit = false

	if elem, ok := c.items[key]; ok {
		elem.Value.(*cacheEntry).result = stored
		c.order.MoveToFront(elem)
		return
	}

	c.items[key] = c.order.PushFront(&cacheEntry{key: key, result: stored})
	for c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
