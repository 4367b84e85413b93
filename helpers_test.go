package musicbox

import (
	"context"
	"errors"
	"sync"
	"time"

	pr "github.com/unkn0wn-root/musicbox/provider"
)

type memProvider struct {
	mu      sync.Mutex
	m       map[string][]byte
	failSet error
	dels    int
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string][]byte)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[key]
	return v, ok, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failSet != nil {
		return false, p.failSet
	}
	p.m[key] = append([]byte(nil), value...)
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, key)
	p.dels++
	return nil
}

func (p *memProvider) Close(_ context.Context) error { return nil }

func (p *memProvider) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.m[key]
	return ok
}

func (p *memProvider) raw(key string) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.m[key]
}

func (p *memProvider) put(key string, b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[key] = b
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 21, 18, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingHooks keeps every event for assertions.
type recordingHooks struct {
	NopHooks
	mu          sync.Mutex
	selfHeals   []string
	writeFails  []string
	transitions []GateState
	revoked     []DenialReason
	balances    [][2]int
	discarded   []int
	staleQuery  []string
}

func (h *recordingHooks) SelfHeal(_ string, reason string) {
	h.mu.Lock()
	h.selfHeals = append(h.selfHeals, reason)
	h.mu.Unlock()
}

func (h *recordingHooks) StoreWriteFailed(key string, _ error) {
	h.mu.Lock()
	h.writeFails = append(h.writeFails, key)
	h.mu.Unlock()
}

func (h *recordingHooks) GateTransition(_ string, _ GateState, to GateState) {
	h.mu.Lock()
	h.transitions = append(h.transitions, to)
	h.mu.Unlock()
}

func (h *recordingHooks) AccessRevoked(_ string, r DenialReason) {
	h.mu.Lock()
	h.revoked = append(h.revoked, r)
	h.mu.Unlock()
}

func (h *recordingHooks) BalanceReplaced(prev, cur int) {
	h.mu.Lock()
	h.balances = append(h.balances, [2]int{prev, cur})
	h.mu.Unlock()
}

func (h *recordingHooks) AnonymousPointsDiscarded(n int) {
	h.mu.Lock()
	h.discarded = append(h.discarded, n)
	h.mu.Unlock()
}

func (h *recordingHooks) StaleSearchDropped(q string) {
	h.mu.Lock()
	h.staleQuery = append(h.staleQuery, q)
	h.mu.Unlock()
}

var errQuota = errors.New("quota exceeded")
