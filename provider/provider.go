// Package provider defines the device-side byte store behind the TTL cache.
//
// A provider plays the role a browser's localStorage plays for the web
// client: a best-effort key/value area that may refuse writes (quota,
// disabled storage) or lose entries at any time. Implementations MUST be
// byte-for-byte transparent: Get returns exactly the []byte given to Set.
//
// The TTL passed to Set is advisory. The cache frames its own expiry in every
// value and enforces it on read, so stores without per-entry TTL (bigcache)
// are still correct.
package provider

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrQuotaExceeded reports a write refused because the value or the store
	// is over its size budget.
	ErrQuotaExceeded = errors.New("provider: quota exceeded")
	// ErrClosed reports use of a closed store.
	ErrClosed = errors.New("provider: closed")
)

// Provider is a minimal byte store with TTLs. Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. May ignore cost if unsupported.
	// Returns ok=false when the store dropped the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
