// Package store is the key-value credential store used for session bookkeeping
// and short-lived caches.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound    = errors.New("store: key not found")
	ErrUnavailable = errors.New("store: unavailable")
)

// DefaultScanLimit caps ScanPrefix so a prefix scan never walks the whole keyspace.
const DefaultScanLimit = 1000

// Store is the credential store contract. Every method is remote I/O: callers
// must treat ErrUnavailable as transient and never as "not authenticated".
type Store interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns ErrNotFound when the key is absent or expired.
	Get(ctx context.Context, key string) (string, error)
	// Delete is idempotent.
	Delete(ctx context.Context, keys ...string) error
	// CompareAndSwap replaces key with next only if its current value equals prev.
	// It reports false (and no error) when the key is absent or holds another value.
	CompareAndSwap(ctx context.Context, key, prev, next string, ttl time.Duration) (bool, error)
	// ScanPrefix returns at most limit keys starting with prefix.
	ScanPrefix(ctx context.Context, prefix string, limit int) ([]string, error)
}
