package musicbox

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/musicbox/model"
)

// AccountState is what account subscribers observe.
type AccountState struct {
	SignedIn        bool
	Account         model.Account
	AnonymousPoints int
}

// AccountStore owns the signed-in account and the anonymous points counter.
// Every mutation goes through one method per concern; the balance is only
// ever replaced by a server value, never computed locally.
type AccountStore struct {
	mu       sync.Mutex
	signedIn bool
	acct     model.Account

	anon    TTLStore[int]
	anonTTL time.Duration
	hooks   Hooks
	log     Logger

	subMu   sync.Mutex
	subs    map[int]func(AccountState)
	nextSub int
}

// NewAccountStore persists the anonymous counter in anon. anonTTL <= 0 uses
// DefaultAnonymousTTL.
func NewAccountStore(anon TTLStore[int], anonTTL time.Duration, hooks Hooks, log Logger) *AccountStore {
	return &AccountStore{
		anon:    anon,
		anonTTL: coalesce[time.Duration](anonTTL, DefaultAnonymousTTL),
		hooks:   coalesce[Hooks](hooks, NopHooks{}),
		log:     coalesce[Logger](log, NopLogger{}),
		subs:    make(map[int]func(AccountState)),
	}
}

// SignIn installs acct. Points earned while anonymous are discarded: the
// server never credits them to an account.
func (a *AccountStore) SignIn(ctx context.Context, acct model.Account) {
	if acct.Points < 0 {
		acct.Points = 0
	}
	dropped := a.AnonymousPoints(ctx)
	if dropped > 0 {
		a.anon.Remove(ctx, AnonymousPointsKey)
		a.hooks.AnonymousPointsDiscarded(dropped)
		a.log.Info("anonymous points discarded on sign-in", Fields{"points": dropped, "user": acct.Username})
	}

	a.mu.Lock()
	a.signedIn = true
	a.acct = acct
	st := a.stateLocked(0)
	a.mu.Unlock()
	a.publish(st)
}

func (a *AccountStore) SignOut(ctx context.Context) {
	a.mu.Lock()
	a.signedIn = false
	a.acct = model.Account{}
	a.mu.Unlock()
	a.publish(a.State(ctx))
}

// Current returns the signed-in account.
func (a *AccountStore) Current() (model.Account, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acct, a.signedIn
}

// Balance is the server-confirmed balance, 0 when signed out.
func (a *AccountStore) Balance() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acct.Points
}

// ReplaceBalance installs a server-reported balance. It is ignored while
// signed out.
func (a *AccountStore) ReplaceBalance(n int) {
	if n < 0 {
		n = 0
	}
	a.mu.Lock()
	if !a.signedIn {
		a.mu.Unlock()
		a.log.Debug("balance update without account ignored", Fields{"points": n})
		return
	}
	prev := a.acct.Points
	a.acct.Points = n
	st := a.stateLocked(0)
	a.mu.Unlock()

	if prev != n {
		a.hooks.BalanceReplaced(prev, n)
	}
	a.publish(st)
}

// AnonymousPoints reads the persisted anonymous counter (0 when absent or
// expired).
func (a *AccountStore) AnonymousPoints(ctx context.Context) int {
	n, ok := a.anon.GetValid(ctx, AnonymousPointsKey)
	if !ok || n < 0 {
		return 0
	}
	return n
}

// AddAnonymousPoints grows the anonymous counter by n and returns the new
// total. Each add refreshes the counter's TTL.
func (a *AccountStore) AddAnonymousPoints(ctx context.Context, n int) int {
	if n <= 0 {
		return a.AnonymousPoints(ctx)
	}
	a.mu.Lock()
	total := a.AnonymousPoints(ctx) + n
	a.anon.SetWithTTL(ctx, AnonymousPointsKey, total, a.anonTTL)
	st := a.stateLocked(total)
	a.mu.Unlock()

	a.publish(st)
	return total
}

// State is a point-in-time copy.
func (a *AccountStore) State(ctx context.Context) AccountState {
	anon := a.AnonymousPoints(ctx)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked(anon)
}

func (a *AccountStore) stateLocked(anon int) AccountState {
	return AccountState{SignedIn: a.signedIn, Account: a.acct, AnonymousPoints: anon}
}

// Subscribe registers fn for every account change.
func (a *AccountStore) Subscribe(fn func(AccountState)) (cancel func()) {
	a.subMu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = fn
	a.subMu.Unlock()
	return func() {
		a.subMu.Lock()
		delete(a.subs, id)
		a.subMu.Unlock()
	}
}

func (a *AccountStore) publish(st AccountState) {
	a.subMu.Lock()
	fns := make([]func(AccountState), 0, len(a.subs))
	for _, fn := range a.subs {
		fns = append(fns, fn)
	}
	a.subMu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}
