package musicbox

import (
	"context"
	"fmt"
	"time"

	c "github.com/unkn0wn-root/musicbox/codec"
	"github.com/unkn0wn-root/musicbox/internal/util"
	"github.com/unkn0wn-root/musicbox/internal/wire"
	pr "github.com/unkn0wn-root/musicbox/provider"
)

// TTLStore is a best-effort key/value cache with per-entry expiry.
// No caller may assume a value written earlier is still there: entries expire,
// providers evict, and write failures are swallowed.
type TTLStore[V any] interface {
	Enabled() bool
	// SetWithTTL never fails from the caller's view; ttl <= 0 uses the default.
	SetWithTTL(ctx context.Context, key string, value V, ttl time.Duration)
	// GetValid returns the value if present and unexpired. Expired or
	// malformed entries are purged and reported as absent.
	GetValid(ctx context.Context, key string) (V, bool)
	// Remove deletes the key, ignoring failures.
	Remove(ctx context.Context, key string)
}

// TTLOptions tune a TTLStore. Provider and Codec are required.
type TTLOptions[V any] struct {
	Provider pr.Provider
	Codec    c.Codec[V]

	Namespace  string        // optional key prefix; "" keeps keys as given
	Logger     Logger        // nil => NopLogger
	Hooks      Hooks         // nil => NopHooks
	DefaultTTL time.Duration // 0 => DefaultSnapshotTTL
	Disabled   bool          // every read misses, every write is dropped
	// Now is the clock; nil => time.Now.
	Now func() time.Time
	// ComputeSetCost feeds cost-aware providers; default is the framed size.
	ComputeSetCost func(storageKey string, raw []byte) int64
}

type ttlStore[V any] struct {
	ns         string
	provider   pr.Provider
	codec      c.Codec[V]
	log        Logger
	hooks      Hooks
	enabled    bool
	defaultTTL time.Duration
	now        func() time.Time
	cost       func(string, []byte) int64
}

func NewTTLStore[V any](opts TTLOptions[V]) (TTLStore[V], error) {
	return newTTLStore[V](opts)
}

func newTTLStore[V any](opts TTLOptions[V]) (*ttlStore[V], error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("musicbox: provider is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("musicbox: codec is required")
	}

	s := &ttlStore[V]{
		ns:       opts.Namespace,
		provider: opts.Provider,
		codec:    opts.Codec,
		enabled:  !opts.Disabled,
	}
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	s.defaultTTL = coalesce[time.Duration](opts.DefaultTTL, DefaultSnapshotTTL)

	s.now = opts.Now
	if s.now == nil {
		s.now = time.Now
	}
	s.cost = opts.ComputeSetCost
	if s.cost == nil {
		s.cost = func(_ string, raw []byte) int64 { return int64(len(raw)) }
	}
	return s, nil
}

func (s *ttlStore[V]) Enabled() bool { return s.enabled }

func (s *ttlStore[V]) SetWithTTL(ctx context.Context, key string, value V, ttl time.Duration) {
	if !s.enabled {
		return
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	k := util.Key(s.ns, key)
	payload, err := s.codec.Encode(value)
	if err != nil {
		s.writeFailed(k, fmt.Errorf("encode: %w", err))
		return
	}
	expiresAt := s.now().Add(ttl).UnixMilli()
	raw := wire.EncodeEntry(expiresAt, payload)
	ok, err := s.provider.Set(ctx, k, raw, s.cost(k, raw), ttl)
	if err != nil {
		s.writeFailed(k, err)
		return
	}
	if !ok {
		s.log.Debug("cache write rejected by provider (pressure)", Fields{"key": k})
	}
}

func (s *ttlStore[V]) GetValid(ctx context.Context, key string) (V, bool) {
	var zero V
	if !s.enabled {
		return zero, false
	}
	k := util.Key(s.ns, key)
	raw, ok, err := s.provider.Get(ctx, k)
	if err != nil {
		s.log.Warn("cache read failed; treating as miss", Fields{"key": k, "err": err})
		return zero, false
	}
	if !ok {
		return zero, false
	}
	expiresAt, payload, err := wire.DecodeEntry(raw)
	if err != nil {
		s.purge(ctx, k, "corrupt")
		return zero, false
	}
	if s.now().UnixMilli() > expiresAt {
		s.purge(ctx, k, "expired")
		return zero, false
	}
	v, err := s.codec.Decode(payload)
	if err != nil {
		s.purge(ctx, k, "value_decode")
		return zero, false
	}
	return v, true
}

func (s *ttlStore[V]) Remove(ctx context.Context, key string) {
	if !s.enabled {
		return
	}
	k := util.Key(s.ns, key)
	if err := s.provider.Del(ctx, k); err != nil {
		s.log.Debug("cache delete failed", Fields{"key": k, "err": err})
	}
}

func (s *ttlStore[V]) purge(ctx context.Context, storageKey, reason string) {
	_ = s.provider.Del(ctx, storageKey)
	s.hooks.SelfHeal(storageKey, reason)
	s.log.Debug("cache entry purged", Fields{"key": storageKey, "reason": reason})
}

func (s *ttlStore[V]) writeFailed(storageKey string, err error) {
	s.hooks.StoreWriteFailed(storageKey, err)
	s.log.Warn("cache write dropped", Fields{"key": storageKey, "err": err})
}
