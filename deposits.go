package musicbox

import (
	"sync"

	"github.com/unkn0wn-root/musicbox/model"
)

// well-known list names
const (
	ListMain  = "main"
	ListOlder = "older"
)

// DepositEvent tells subscribers a deposit record changed.
type DepositEvent struct {
	ID      model.DepositID
	Deposit model.Deposit
}

// DepositBook stores each deposit once, keyed by id. Lists only hold ids, so
// patching a record updates every list (and every view) that shows it.
type DepositBook struct {
	mu    sync.RWMutex
	byID  map[model.DepositID]model.Deposit
	lists map[string][]model.DepositID

	subMu   sync.Mutex
	subs    map[int]func(DepositEvent)
	nextSub int
}

func NewDepositBook() *DepositBook {
	return &DepositBook{
		byID:  make(map[model.DepositID]model.Deposit),
		lists: make(map[string][]model.DepositID),
		subs:  make(map[int]func(DepositEvent)),
	}
}

// Put upserts records without touching any list.
func (b *DepositBook) Put(deps ...model.Deposit) {
	b.mu.Lock()
	for _, d := range deps {
		b.byID[d.ID] = d.Clone()
	}
	b.mu.Unlock()
	for _, d := range deps {
		b.publish(DepositEvent{ID: d.ID, Deposit: d.Clone()})
	}
}

// SetList upserts deps and makes name list exactly their ids, in order.
func (b *DepositBook) SetList(name string, deps []model.Deposit) {
	ids := make([]model.DepositID, len(deps))
	for i, d := range deps {
		ids[i] = d.ID
	}
	b.Put(deps...)
	b.mu.Lock()
	b.lists[name] = ids
	b.mu.Unlock()
}

// List derives the current records for a list. Ids without a record are
// skipped.
func (b *DepositBook) List(name string) []model.Deposit {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := b.lists[name]
	out := make([]model.Deposit, 0, len(ids))
	for _, id := range ids {
		if d, ok := b.byID[id]; ok {
			out = append(out, d.Clone())
		}
	}
	return out
}

func (b *DepositBook) Get(id model.DepositID) (model.Deposit, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.byID[id]
	if !ok {
		return model.Deposit{}, false
	}
	return d.Clone(), true
}

// Update patches the record for id in place and notifies subscribers.
// It reports whether the record exists.
func (b *DepositBook) Update(id model.DepositID, fn func(*model.Deposit)) bool {
	b.mu.Lock()
	d, ok := b.byID[id]
	if !ok {
		b.mu.Unlock()
		return false
	}
	d = d.Clone()
	fn(&d)
	d.ID = id // the key is not patchable
	b.byID[id] = d
	b.mu.Unlock()

	b.publish(DepositEvent{ID: id, Deposit: d.Clone()})
	return true
}

// Subscribe registers fn for every record change. fn runs on the mutating
// goroutine after the book lock is released.
func (b *DepositBook) Subscribe(fn func(DepositEvent)) (cancel func()) {
	b.subMu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	b.subMu.Unlock()
	return func() {
		b.subMu.Lock()
		delete(b.subs, id)
		b.subMu.Unlock()
	}
}

func (b *DepositBook) publish(ev DepositEvent) {
	b.subMu.Lock()
	fns := make([]func(DepositEvent), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
