package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(maxEntries int, ttl time.Duration) *Cache {
	return New("test", maxEntries, ttl, zerolog.Nop())
}

func TestGetPut(t *testing.T) {
	c := newTestCache(10, time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Put("a", []byte("payload-a"))
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("payload-a"), got)

	hits, misses, _ := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestPutNeverRefreshes(t *testing.T) {
	c := newTestCache(10, time.Minute)

	c.Put("k", []byte("first"))
	c.Put("k", []byte("second"))

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("first"), got)
	assert.Equal(t, 1, c.Len())
}

func TestEvictionBound(t *testing.T) {
	const maxSize = 5
	c := newTestCache(maxSize, time.Minute)

	for i := 0; i < maxSize*3; i++ {
		c.Put(fmt.Sprintf("key-%d", i), []byte{byte(i)})
	}

	assert.Equal(t, maxSize, c.Len())

	// Earliest-inserted keys are gone, latest survive.
	for i := 0; i < maxSize*2; i++ {
		_, ok := c.Get(fmt.Sprintf("key-%d", i))
		assert.False(t, ok, "key-%d should have been evicted", i)
	}
	for i := maxSize * 2; i < maxSize*3; i++ {
		_, ok := c.Get(fmt.Sprintf("key-%d", i))
		assert.True(t, ok, "key-%d should survive", i)
	}

	_, _, evictions := c.Stats()
	assert.Equal(t, uint64(maxSize*2), evictions)
}

func TestTTLSweep(t *testing.T) {
	c := newTestCache(10, 10*time.Millisecond)

	c.Put("old", []byte("x"))
	time.Sleep(25 * time.Millisecond)
	c.Put("fresh", []byte("y"))

	removed := c.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("fresh")
	assert.True(t, ok)
	_, ok = c.Get("old")
	assert.False(t, ok)
}

func TestCorruptionTreatedAsMiss(t *testing.T) {
	c := newTestCache(10, time.Minute)

	c.Put("k", []byte{1, 2, 3})

	// Corrupt the stored payload behind the cache's back.
	c.mu.Lock()
	c.entries["k"].payload[0] = 99
	c.mu.Unlock()

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "corrupt entry must be dropped")
}

func TestKeyDeterministic(t *testing.T) {
	a := Key("session-1", "0.033", "happy")
	b := Key("session-1", "0.033", "happy")
	c := Key("session-1", "0.066", "happy")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	// Part boundaries matter: ("ab","c") != ("a","bc").
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
}

func TestSweeperLifecycle(t *testing.T) {
	c := newTestCache(10, 5*time.Millisecond)
	c.Put("k", []byte("x"))
	c.StartSweeper(10 * time.Millisecond)

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)

	c.Stop()
	c.Stop() // idempotent
}
