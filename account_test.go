package musicbox

import (
	"context"
	"testing"

	c "github.com/unkn0wn-root/musicbox/codec"
	"github.com/unkn0wn-root/musicbox/model"
)

func newTestAccount(t *testing.T, mp *memProvider, clk *fakeClock, h Hooks) *AccountStore {
	t.Helper()
	anon, err := NewTTLStore[int](TTLOptions[int]{Provider: mp, Codec: c.Int{}, Now: clk.Now, Hooks: h})
	if err != nil {
		t.Fatal(err)
	}
	return NewAccountStore(anon, 0, h, nil)
}

func TestAccountReplaceBalanceClampsAndNotifies(t *testing.T) {
	ctx := context.Background()
	h := &recordingHooks{}
	a := newTestAccount(t, newMemProvider(), newFakeClock(), h)
	a.SignIn(ctx, model.Account{Username: "ana", Points: 100})

	var seen []int
	cancel := a.Subscribe(func(st AccountState) { seen = append(seen, st.Account.Points) })
	defer cancel()

	a.ReplaceBalance(60)
	a.ReplaceBalance(-5)
	if a.Balance() != 0 {
		t.Fatalf("balance = %d, want clamped 0", a.Balance())
	}
	if len(seen) != 2 || seen[0] != 60 || seen[1] != 0 {
		t.Fatalf("subscriber saw %v", seen)
	}
	if len(h.balances) != 2 || h.balances[0] != [2]int{100, 60} {
		t.Fatalf("hook saw %v", h.balances)
	}
}

func TestAccountReplaceBalanceSignedOutIgnored(t *testing.T) {
	a := newTestAccount(t, newMemProvider(), newFakeClock(), nil)
	a.ReplaceBalance(40)
	if _, ok := a.Current(); ok || a.Balance() != 0 {
		t.Fatalf("signed-out balance changed")
	}
}

func TestAccountAnonymousPointsPersist(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	clk := newFakeClock()
	a := newTestAccount(t, mp, clk, nil)

	if got := a.AddAnonymousPoints(ctx, 15); got != 15 {
		t.Fatalf("first add = %d", got)
	}
	if got := a.AddAnonymousPoints(ctx, 5); got != 20 {
		t.Fatalf("second add = %d", got)
	}
	a.AddAnonymousPoints(ctx, 0)

	// a fresh store over the same provider sees the counter
	b := newTestAccount(t, mp, clk, nil)
	if got := b.AnonymousPoints(ctx); got != 20 {
		t.Fatalf("persisted counter = %d", got)
	}

	clk.Advance(DefaultAnonymousTTL + 1)
	if got := b.AnonymousPoints(ctx); got != 0 {
		t.Fatalf("expired counter = %d", got)
	}
}

func TestAccountSignInDiscardsAnonymousPoints(t *testing.T) {
	ctx := context.Background()
	h := &recordingHooks{}
	mp := newMemProvider()
	a := newTestAccount(t, mp, newFakeClock(), h)
	a.AddAnonymousPoints(ctx, 30)

	a.SignIn(ctx, model.Account{Username: "ana", Points: 10})

	if a.AnonymousPoints(ctx) != 0 {
		t.Fatalf("anonymous counter survived sign-in")
	}
	if mp.has(AnonymousPointsKey) {
		t.Fatalf("counter key still stored")
	}
	if len(h.discarded) != 1 || h.discarded[0] != 30 {
		t.Fatalf("discard hook = %v", h.discarded)
	}
	if a.Balance() != 10 {
		t.Fatalf("balance = %d", a.Balance())
	}

	a.SignOut(ctx)
	if _, ok := a.Current(); ok {
		t.Fatalf("still signed in")
	}
}
