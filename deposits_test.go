package musicbox

import (
	"testing"

	"github.com/unkn0wn-root/musicbox/model"
)

func TestDepositBookUpdateReachesEveryList(t *testing.T) {
	b := NewDepositBook()
	b.SetList(ListOlder, []model.Deposit{teaser(2), teaser(3)})
	b.SetList("library", []model.Deposit{teaser(3), teaser(7)})

	var events []model.DepositID
	cancel := b.Subscribe(func(ev DepositEvent) { events = append(events, ev.ID) })
	defer cancel()

	ok := b.Update(3, func(d *model.Deposit) {
		s := d.Song.Merge(model.Song{Title: "Teardrop", Artist: "Massive Attack"})
		d.Song = &s
	})
	if !ok {
		t.Fatalf("Update missed deposit 3")
	}

	older := b.List(ListOlder)
	lib := b.List("library")
	if !older[1].Revealed() || !lib[0].Revealed() {
		t.Fatalf("deposit 3 not revealed in both lists")
	}
	if older[0].Revealed() || lib[1].Revealed() {
		t.Fatalf("other deposits changed")
	}
	if len(events) != 1 || events[0] != 3 {
		t.Fatalf("events = %v", events)
	}
}

func TestDepositBookListsReturnCopies(t *testing.T) {
	b := NewDepositBook()
	b.SetList(ListMain, []model.Deposit{dep(1, "a", "b")})
	l := b.List(ListMain)
	l[0].Song.Title = "mutated"
	if got, _ := b.Get(1); got.Song.Title != "a" {
		t.Fatalf("list slice aliases the book")
	}
}

func TestDepositBookUnknownAndUnsubscribe(t *testing.T) {
	b := NewDepositBook()
	calls := 0
	cancel := b.Subscribe(func(DepositEvent) { calls++ })
	if b.Update(42, func(*model.Deposit) {}) {
		t.Fatalf("unknown id reported as updated")
	}
	cancel()
	b.Put(teaser(1))
	if calls != 0 {
		t.Fatalf("cancelled subscriber was called %d times", calls)
	}
	if _, ok := b.Get(1); !ok {
		t.Fatalf("Put did not store record")
	}
	if len(b.List("missing")) != 0 {
		t.Fatalf("unknown list should be empty")
	}
}
