package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/tts-gateway/internal/core"
)

// ResponseCache is the tiered response cache. Reads check the fast tier
// first and fall back to the shared tier, backfilling the fast tier on a
// shared hit. Shared-tier failures are logged and absorbed: a cache fault
// must never fail the request it was serving.
type ResponseCache struct {
	fast          *FastTier
	shared        SharedTier
	sharedTimeout time.Duration
	log           *logger.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates a tiered response cache. The shared tier may be nil, in which
// case the cache operates on the fast tier alone.
func New(
	fast *FastTier,
	shared SharedTier,
	sharedTimeout time.Duration,
	log *logger.Logger,
) *ResponseCache {
	return &ResponseCache{
		fast:          fast,
		shared:        shared,
		sharedTimeout: sharedTimeout,
		log:           log,
	}
}

// Get returns the cached entry for key. A shared-tier hit is copied into
// the fast tier before returning.
func (c *ResponseCache) Get(ctx context.Context, key string) (Entry, bool) {
	entry, found := c.fast.Get(key)
	if found {
		c.hits.Add(1)

		return entry, true
	}

	if c.shared == nil {
		c.misses.Add(1)

		return Entry{}, false
	}

	sharedCtx, cancel := context.WithTimeout(ctx, c.sharedTimeout)
	defer cancel()

	entry, found, err := c.shared.Get(sharedCtx, key)
	if err != nil {
		c.log.Warn("Shared cache tier get failed, treating as miss: %v", err)
		c.misses.Add(1)

		return Entry{}, false
	}

	if !found {
		c.misses.Add(1)

		return Entry{}, false
	}

	c.fast.Put(key, entry, time.Until(entry.ExpiresAt))
	c.hits.Add(1)

	return entry, true
}

// Put stores a payload under key with the given TTL. The fast-tier write is
// synchronous; the shared-tier write is best-effort.
func (c *ResponseCache) Put(
	ctx context.Context,
	key string,
	payload []byte,
	contentType string,
	ttl time.Duration,
) {
	now := time.Now()
	entry := Entry{
		Fingerprint: key,
		Payload:     payload,
		ContentType: contentType,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}

	c.fast.Put(key, entry, ttl)

	if c.shared == nil {
		return
	}

	sharedCtx, cancel := context.WithTimeout(ctx, c.sharedTimeout)
	defer cancel()

	err := c.shared.Set(sharedCtx, key, entry)
	if err != nil {
		c.log.Warn("Shared cache tier set failed: %v", err)
	}
}

// Stats returns hit/miss accounting since process start or the last reset.
// The entry count covers the fast tier; the shared tier does not track size.
func (c *ResponseCache) Stats() core.CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	stats := core.CacheStats{
		Hits:       hits,
		Misses:     misses,
		HitRate:    0,
		EntryCount: c.fast.Len(),
	}

	if hits+misses > 0 {
		stats.HitRate = float64(hits) / float64(hits+misses)
	}

	return stats
}

// ResetStats zeroes the hit/miss counters.
func (c *ResponseCache) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
}

// Clear removes all entries from both tiers. Administrative operation; not
// on the request hot path.
func (c *ResponseCache) Clear(ctx context.Context) error {
	c.fast.Clear()

	if c.shared == nil {
		return nil
	}

	sharedCtx, cancel := context.WithTimeout(ctx, c.sharedTimeout)
	defer cancel()

	return c.shared.Clear(sharedCtx)
}
