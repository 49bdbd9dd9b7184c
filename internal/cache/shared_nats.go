package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	natsReplicas = 1

	// DefaultRequestTimeout bounds a bucket round trip when no timeout is
	// configured.
	DefaultRequestTimeout = time.Second
)

// NatsTier implements the SharedTier interface on a NATS JetStream
// key-value bucket. Round trips are bounded by the request timeout set at
// construction; storage-level expiry is handled by the bucket TTL.
type NatsTier struct {
	keyValue nats.KeyValue
	bucket   string
}

// NewNatsTier creates or binds the key-value bucket for the shared cache
// tier over its own JetStream context, with requestTimeout bounding every
// round trip. It uses a "create-first" approach: if the bucket already
// exists it binds to it instead.
func NewNatsTier(
	natsConnection *nats.Conn,
	bucketName string,
	ttl time.Duration,
	requestTimeout time.Duration,
) (*NatsTier, error) {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}

	jetstreamContext, err := natsConnection.JetStream(nats.MaxWait(requestTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	keyValue, err := jetstreamContext.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Shared response cache tier (%s).", bucketName),
		TTL:         ttl,
		Storage:     nats.FileStorage,
		Replicas:    natsReplicas,
	})
	if err != nil {
		keyValue, err = jetstreamContext.KeyValue(bucketName)
		if err != nil {
			return nil, fmt.Errorf(
				"failed to create or bind cache bucket '%s': %w",
				bucketName, err,
			)
		}
	}

	return &NatsTier{
		keyValue: keyValue,
		bucket:   bucketName,
	}, nil
}

// Get retrieves an entry from the bucket. Entries whose own TTL elapsed
// before the bucket-level expiry are treated as misses and purged.
func (t *NatsTier) Get(_ context.Context, key string) (Entry, bool, error) {
	raw, err := t.keyValue.Get(key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return Entry{}, false, nil
	}

	if err != nil {
		return Entry{}, false, fmt.Errorf(
			"failed to get key '%s' from bucket '%s': %w",
			key, t.bucket, err,
		)
	}

	var entry Entry

	err = json.Unmarshal(raw.Value(), &entry)
	if err != nil {
		return Entry{}, false, fmt.Errorf(
			"failed to decode cache entry '%s': %w", key, err,
		)
	}

	if entry.Expired(time.Now()) {
		// Best-effort cleanup; the bucket TTL will catch it anyway.
		_ = t.keyValue.Purge(key)

		return Entry{}, false, nil
	}

	return entry, true, nil
}

// Set stores an entry in the bucket. The entry carries its own expiry;
// storage-level expiry comes from the bucket TTL.
func (t *NatsTier) Set(_ context.Context, key string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry '%s': %w", key, err)
	}

	_, err = t.keyValue.Put(key, data)
	if err != nil {
		return fmt.Errorf(
			"failed to put key '%s' to bucket '%s': %w",
			key, t.bucket, err,
		)
	}

	return nil
}

// Clear purges every key in the bucket.
func (t *NatsTier) Clear(_ context.Context) error {
	keys, err := t.keyValue.Keys()
	if errors.Is(err, nats.ErrNoKeysFound) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to list keys in bucket '%s': %w", t.bucket, err)
	}

	for _, key := range keys {
		purgeErr := t.keyValue.Purge(key)
		if purgeErr != nil {
			return fmt.Errorf(
				"failed to purge key '%s' from bucket '%s': %w",
				key, t.bucket, purgeErr,
			)
		}
	}

	return nil
}
