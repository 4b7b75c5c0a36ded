// Package store provides the session-scoped key-value store backing the
// classification cache, the resumable analysis state, and persisted custom
// rules. The engine is the sole writer; concurrent instances racing on the
// same backing store are unsupported.
package store

import (
	"context"
	"time"
)

// Well-known key prefixes. Cache entries are keyed per opportunity id;
// state and rules are singletons per session.
const (
	CacheKeyPrefix = "cache/"
	StateKey       = "analysis-state"
	RulesKey       = "custom-rules"
)

// CacheKey returns the cache key for an opportunity id.
func CacheKey(oppID string) string {
	return CacheKeyPrefix + oppID
}

// Store is a key-value store with per-entry TTL expiry. Expired entries are
// treated as absent by Get and List.
type Store interface {
	// Get returns the value for key and whether a live entry exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set writes key with the given TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns the keys with the given prefix that have live entries.
	List(ctx context.Context, prefix string) ([]string, error)

	// Migrate creates backing schema where applicable.
	Migrate(ctx context.Context) error

	Close() error
}
