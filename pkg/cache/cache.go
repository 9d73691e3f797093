// Package cache provides a short-TTL key/value store used as a read
// accelerator for alert lookups. It is never authoritative; a cache entry
// may outlive the store row it mirrors until its TTL expires.
package cache

import (
	"context"
	"time"
)

// Cache is the disposable key/value collaborator.
type Cache interface {
	// SetWithTTL stores a JSON-encoded copy of value under key, expiring
	// after ttl.
	SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the underlying connection.
	Close() error
}
