// Package kv provides named key-value buckets for the scripting runtime,
// backed by SQLite or memory. Scripts use buckets to carry state between
// hook invocations.
package kv

import "time"

// StoreOptions contains optional parameters for Store operations.
type StoreOptions struct {
	TTL time.Duration // zero means no expiry
}

// Bucket is the interface for key-value storage operations. Values are
// strings, numbers, booleans, or maps of those.
type Bucket interface {
	// Name returns the bucket name.
	Name() string

	// IsPersistent returns true if the bucket is backed by SQLite.
	IsPersistent() bool

	// Store saves a value under key, optionally with a TTL.
	Store(key string, value any, opts *StoreOptions) error

	// Get retrieves a value by key. Returns nil if the key doesn't exist
	// or has expired.
	Get(key string) (any, error)

	// Exists returns true if the key exists and hasn't expired.
	Exists(key string) (bool, error)

	// Delete removes a key. Returns true if the key existed.
	Delete(key string) (bool, error)

	// Keys returns all non-expired keys in the bucket.
	Keys() ([]string, error)

	// Clear removes all keys from the bucket.
	Clear() error
}
