package docproc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFingerprintDeterministic ensures identical input produces identical
// keys and any difference in bytes, flags, or options changes the key.
func TestFingerprintDeterministic(t *testing.T) {
	data := []byte("the quick brown fox")
	req := Request{
		Anonymize: true,
		Options:   Options{AnonymizeTerms: []string{"fox"}, AnonymizeReplacement: "X"},
	}

	assert.Equal(t, Fingerprint(data, req), Fingerprint(data, req))
	assert.NotEqual(t, Fingerprint(data, req), Fingerprint([]byte("other bytes"), req))

	flipped := req
	flipped.RemovePII = true
	assert.NotEqual(t, Fingerprint(data, req), Fingerprint(data, flipped))

	replaced := req
	replaced.Options.AnonymizeReplacement = "Y"
	assert.NotEqual(t, Fingerprint(data, req), Fingerprint(data, replaced))
}

// TestFingerprintNormalizesOptions ensures logically identical requests
// fingerprint identically regardless of term spelling and order noise.
func TestFingerprintNormalizesOptions(t *testing.T) {
	data := []byte("content")
	a := Request{Anonymize: true, Options: Options{AnonymizeTerms: []string{" Acme ", "acme", "Beta"}}}
	b := Request{Anonymize: true, Options: Options{AnonymizeTerms: []string{"Acme", "Beta", ""}}}

	assert.Equal(t, Fingerprint(data, a), Fingerprint(data, b))
}

func testResult(id string) Result {
	return Result{
		Content:   []byte("output-" + id),
		Extension: ".json",
		Metadata: Metadata{
			Timing: map[string]float64{"read_txt": 0.25},
			RunID:  id,
		},
	}
}

// TestCacheHitPreservesMetadata ensures a hit returns historical metadata
// with only CacheHit flipped, and that the returned copy is independent of
// the stored entry.
func TestCacheHitPreservesMetadata(t *testing.T) {
	cache := NewCache(4)
	cache.Put("k", testResult("run-1"))

	got, ok := cache.Get("k")
	require.True(t, ok)
	assert.True(t, got.Metadata.CacheHit)
	assert.Equal(t, "run-1", got.Metadata.RunID)
	assert.Equal(t, 0.25, got.Metadata.Timing["read_txt"])

	// Mutating the returned copy must not corrupt the cached entry.
	got.Metadata.Timing["read_txt"] = 99

	again, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, 0.25, again.Metadata.Timing["read_txt"])
}

// TestCacheLRUEviction ensures eviction removes least recently used entries
// and Get refreshes recency.
func TestCacheLRUEviction(t *testing.T) {
	cache := NewCache(2)
	cache.Put("a", testResult("a"))
	cache.Put("b", testResult("b"))

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := cache.Get("a")
	require.True(t, ok)

	cache.Put("c", testResult("c"))
	assert.Equal(t, 2, cache.Len())

	_, ok = cache.Get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = cache.Get("a")
	assert.True(t, ok)
	_, ok = cache.Get("c")
	assert.True(t, ok)
}

// TestCacheZeroCapacity ensures capacity zero disables caching entirely.
func TestCacheZeroCapacity(t *testing.T) {
	cache := NewCache(0)
	cache.Put("k", testResult("x"))

	_, ok := cache.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

// TestCacheUpdateExisting ensures re-putting a key replaces its value
// without growing the cache.
func TestCacheUpdateExisting(t *testing.T) {
	cache := NewCache(3)
	cache.Put("k", testResult("old"))
	cache.Put("k", testResult("new"))

	assert.Equal(t, 1, cache.Len())
	got, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", got.Metadata.RunID)
}

// TestCacheManyInserts ensures the size bound holds under churn.
func TestCacheManyInserts(t *testing.T) {
	cache := NewCache(8)
	for i := 0; i < 100; i++ {
		cache.Put(fmt.Sprintf("key-%d", i), testResult(fmt.Sprintf("run-%d", i)))
	}
	assert.Equal(t, 8, cache.Len())
}
