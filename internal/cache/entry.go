// Package cache provides the tiered response cache for synthesized audio:
// a fast in-process tier backed by a TTL cache and an optional shared tier
// backed by NATS JetStream key-value storage.
package cache

import (
	"context"
	"time"
)

// Entry is a cached synthesis response. Entries are owned exclusively by the
// cache; no other component mutates them.
type Entry struct {
	Fingerprint string    `json:"fingerprint"`
	Payload     []byte    `json:"payload"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the entry's TTL has elapsed.
func (e Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// SharedTier is the external, multi-process cache layer. Implementations
// must bound every round trip; the tiered cache treats any error as a miss.
type SharedTier interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
	Clear(ctx context.Context) error
}
