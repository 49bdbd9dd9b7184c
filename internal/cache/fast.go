package cache

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// FastTier is the in-process cache layer. Entries expire by TTL and the
// tier is capacity-bounded; when full, the least recently used entry is
// evicted first.
type FastTier struct {
	items *ttlcache.Cache[string, Entry]
}

// NewFastTier creates a fast tier with the given default TTL and maximum
// entry count. Reads never extend an entry's lifetime; expiry is measured
// from the write. The expiration janitor is started immediately; call Stop
// when the tier is no longer needed.
func NewFastTier(defaultTTL time.Duration, capacity uint64) *FastTier {
	items := ttlcache.New[string, Entry](
		ttlcache.WithTTL[string, Entry](defaultTTL),
		ttlcache.WithCapacity[string, Entry](capacity),
		ttlcache.WithDisableTouchOnHit[string, Entry](),
	)

	go items.Start()

	return &FastTier{items: items}
}

// Get returns the entry for key, if present and not expired.
func (t *FastTier) Get(key string) (Entry, bool) {
	item := t.items.Get(key)
	if item == nil {
		return Entry{}, false
	}

	return item.Value(), true
}

// Put stores the entry under key for the given TTL. A non-positive TTL
// falls back to the tier default.
func (t *FastTier) Put(key string, entry Entry, ttl time.Duration) {
	if ttl <= 0 {
		ttl = ttlcache.DefaultTTL
	}

	t.items.Set(key, entry, ttl)
}

// Len returns the number of live entries.
func (t *FastTier) Len() int {
	return t.items.Len()
}

// Clear removes every entry.
func (t *FastTier) Clear() {
	t.items.DeleteAll()
}

// Stop halts the expiration janitor.
func (t *FastTier) Stop() {
	t.items.Stop()
}
