package asynchook

import (
	"sync"
	"testing"

	"github.com/unkn0wn-root/musicbox"
)

type countingHooks struct {
	musicbox.NopHooks
	mu      sync.Mutex
	gates   []musicbox.GateState
	revoked int
	block   chan struct{}
}

func (c *countingHooks) GateTransition(_ string, _, to musicbox.GateState) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	c.gates = append(c.gates, to)
	c.mu.Unlock()
}

func (c *countingHooks) AccessRevoked(string, musicbox.DenialReason) {
	c.mu.Lock()
	c.revoked++
	c.mu.Unlock()
}

func TestAsyncDeliversInOrderWithOneWorker(t *testing.T) {
	inner := &countingHooks{}
	h := New(inner, 1, 8)
	h.GateTransition("canal", musicbox.GateIdle, musicbox.GateRequestingPosition)
	h.GateTransition("canal", musicbox.GateRequestingPosition, musicbox.GateVerifying)
	h.AccessRevoked("canal", musicbox.ReasonTooFar)
	h.Close()

	if len(inner.gates) != 2 || inner.gates[1] != musicbox.GateVerifying || inner.revoked != 1 {
		t.Fatalf("delivered gates=%v revoked=%d", inner.gates, inner.revoked)
	}
	if h.Dropped() != 0 {
		t.Fatalf("dropped = %d", h.Dropped())
	}
}

func TestAsyncDropsWhenFullOrClosed(t *testing.T) {
	inner := &countingHooks{block: make(chan struct{})}
	h := New(inner, 1, 1)

	// first event occupies the worker, second fills the queue, third drops
	for i := 0; i < 3; i++ {
		h.GateTransition("canal", musicbox.GateIdle, musicbox.GateGranted)
	}
	close(inner.block)
	h.Close()
	h.StaleSearchDropped("late")

	if h.Dropped() < 2 {
		t.Fatalf("dropped = %d, want at least 2", h.Dropped())
	}
}
