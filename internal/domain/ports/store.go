package ports

import "context"

// KVStore is the durable string key-value surface the acquirer persists its
// cache entry and request ledger into.
type KVStore interface {
	// Get returns found=false when the key is absent.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	// Remove is a no-op for absent keys.
	Remove(ctx context.Context, key string) error
}
