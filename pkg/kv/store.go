package kv

import "context"

// Store is the key/value surface the vault core runs on. Writes are durable
// and atomic per key from the core's perspective; the core never relies on
// multi-key transactionality.
type Store interface {
	// Get returns the value at key and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes value at key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error
	// Del removes the key. Removing an absent key is not an error.
	Del(ctx context.Context, key string) error
}
