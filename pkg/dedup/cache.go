// Package dedup suppresses re-delivered events with a TTL-bounded cache keyed
// by a content-sensitive fingerprint.
package dedup

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// sweepInterval is how often the cache's janitor removes expired entries.
// Expiry is also checked lazily on every lookup, so Has never reports an
// expired entry regardless of janitor timing.
const sweepInterval = time.Minute

// Cache is the TTL map from fingerprint to expiry.
type Cache struct {
	entries *gocache.Cache
}

// NewCache creates a dedup cache with the configured dedup window as its
// default TTL.
func NewCache(defaultTTL time.Duration) *Cache {
	if defaultTTL <= 0 {
		// TTL 0 disables dedup: entries expire immediately.
		defaultTTL = time.Nanosecond
	}
	return &Cache{entries: gocache.New(defaultTTL, sweepInterval)}
}

// CheckAndRemember reports whether fp was already seen within its TTL.
// On a miss the fingerprint is inserted with the given TTL and false is
// returned. A TTL <= 0 makes the entry expire immediately (dedup disabled).
func (c *Cache) CheckAndRemember(fp string, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = time.Nanosecond
	}
	// Add is atomic: it fails iff a non-expired entry already exists.
	if err := c.entries.Add(fp, time.Now().Add(ttl), ttl); err != nil {
		return true
	}
	return false
}

// Remember inserts or refreshes fp, resetting its timer.
func (c *Cache) Remember(fp string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = time.Nanosecond
	}
	c.entries.Set(fp, time.Now().Add(ttl), ttl)
}

// Has reports whether a non-expired entry exists for fp.
func (c *Cache) Has(fp string) bool {
	_, ok := c.entries.Get(fp)
	return ok
}

// Size returns the number of entries, including expired entries the janitor
// has not yet swept.
func (c *Cache) Size() int {
	return c.entries.ItemCount()
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.entries.Flush()
}
