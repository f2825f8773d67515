// Package cache provides the bounded, TTL-swept byte caches used to
// short-circuit repeated render work. Values are content-addressed, so an
// entry is never refreshed: a hit always returns byte-identical content.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultMaxEntries    = 100
	DefaultTTL           = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
)

// Key builds a content hash from the request inputs. Callers quantize
// timestamps to the frame grid before including them.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

type entry struct {
	payload  []byte
	checksum [sha256.Size]byte
	storedAt time.Time
}

// Cache is one bounded byte cache. Size pressure evicts in insertion order
// (FIFO; staleness is a non-issue for content-addressed values), age is
// handled by a periodic sweep, independent of access patterns.
type Cache struct {
	name       string
	maxEntries int
	ttl        time.Duration
	log        zerolog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	order   []string

	hits      uint64
	misses    uint64
	evictions uint64

	stopSweep chan struct{}
	sweepOnce sync.Once
}

func New(name string, maxEntries int, ttl time.Duration, log zerolog.Logger) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		name:       name,
		maxEntries: maxEntries,
		ttl:        ttl,
		log:        log.With().Str("cache", name).Logger(),
		entries:    make(map[string]*entry),
		stopSweep:  make(chan struct{}),
	}
}

// Get returns the payload for key. A read that fails the integrity check
// is treated as a miss and the entry is dropped.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	if sha256.Sum256(e.payload) != e.checksum {
		c.log.Warn().Str("key", key).Msg("cache entry failed integrity check, dropping")
		c.removeLocked(key)
		c.misses++
		return nil, false
	}

	c.hits++
	return e.payload, true
}

// Put stores payload under key. Existing entries are left alone; two
// computations for the same key are value-identical.
func (c *Cache) Put(key string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		return
	}

	c.entries[key] = &entry{
		payload:  payload,
		checksum: sha256.Sum256(payload),
		storedAt: time.Now(),
	}
	c.order = append(c.order, key)

	for len(c.entries) > c.maxEntries {
		oldest := c.order[0]
		c.removeLocked(oldest)
		c.evictions++
	}
}

func (c *Cache) removeLocked(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes entries older than the TTL and reports how many went.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-c.ttl)
	removed := 0
	for i := 0; i < len(c.order); {
		key := c.order[i]
		if e, ok := c.entries[key]; ok && e.storedAt.Before(cutoff) {
			c.removeLocked(key)
			removed++
			continue // order shrank, same index is the next key
		}
		i++
	}

	if removed > 0 {
		c.log.Debug().Int("removed", removed).Int("remaining", len(c.entries)).Msg("ttl sweep")
	}
	return removed
}

// StartSweeper runs the TTL sweep on interval until Stop is called.
func (c *Cache) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Sweep()
			case <-c.stopSweep:
				return
			}
		}
	}()
}

// Stop terminates the background sweeper. Safe to call more than once.
func (c *Cache) Stop() {
	c.sweepOnce.Do(func() { close(c.stopSweep) })
}

// Stats reports hit/miss/eviction counts since construction.
func (c *Cache) Stats() (hits, misses, evictions uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.evictions
}
