// Package asynchook moves hook callbacks off the session's goroutines.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 256) // 1 worker; queue 256 events
//	defer hooks.Close()
//
//	sess, _ := musicbox.New(musicbox.Options{
//	    Service:  client,
//	    Provider: store,
//	    Hooks:    hooks, // or raw if the callbacks are cheap enough inline
//	})
//
// Events are dropped, never blocked on, when the queue is full.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/musicbox"
)

type Hooks struct {
	inner   musicbox.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards sends against Close
	closed  bool
	dropped atomic.Uint64
}

var _ musicbox.Hooks = (*Hooks)(nil)

func New(inner musicbox.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Later events are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped counts events lost to a full queue or a closed hook.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) SelfHeal(k, r string)           { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) BalanceReplaced(prev, cur int)  { h.try(func() { h.inner.BalanceReplaced(prev, cur) }) }
func (h *Hooks) AnonymousPointsDiscarded(n int) { h.try(func() { h.inner.AnonymousPointsDiscarded(n) }) }
func (h *Hooks) StaleSearchDropped(q string)    { h.try(func() { h.inner.StaleSearchDropped(q) }) }
func (h *Hooks) StoreWriteFailed(k string, err error) {
	h.try(func() { h.inner.StoreWriteFailed(k, err) })
}
func (h *Hooks) GateTransition(slug string, from, to musicbox.GateState) {
	h.try(func() { h.inner.GateTransition(slug, from, to) })
}
func (h *Hooks) AccessRevoked(slug string, r musicbox.DenialReason) {
	h.try(func() { h.inner.AccessRevoked(slug, r) })
}
