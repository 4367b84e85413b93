// Package genstore hands out per-key generation numbers.
//
// A caller bumps the generation before issuing a request and tags the request
// with it; when the response lands, it is only applied if the tag is still the
// current generation. Search-as-you-type uses this to drop late responses for
// queries the user has already typed past.
package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where generations live.
// Use LocalGenStore (default) for one process, or RedisGenStore when several
// front ends share one search session.
type GenStore interface {
	// Current returns the current generation; missing => 0.
	Current(ctx context.Context, key string) (uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, key string) (uint64, error)
	// Cleanup prunes long-idle keys if applicable (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}

// IsCurrent reports whether gen is still the latest generation for key.
func IsCurrent(ctx context.Context, s GenStore, key string, gen uint64) (bool, error) {
	cur, err := s.Current(ctx, key)
	if err != nil {
		return false, err
	}
	return cur == gen, nil
}
