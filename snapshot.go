package musicbox

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/musicbox/model"
)

// BoxSnapshot is the cached, box-scoped view a user carries between the
// discovery, search and achievements screens.
type BoxSnapshot struct {
	BoxSlug       string                `json:"boxSlug"`
	Timestamp     int64                 `json:"timestamp"` // epoch ms of the last write
	Main          *model.Deposit        `json:"main"`
	OlderDeposits []model.Deposit       `json:"olderDeposits"`
	MyDeposit     *model.PartialDeposit `json:"myDeposit"`
	Successes     []model.Achievement   `json:"successes"`
}

// TotalPoints is the point total the achievements panel displays.
func (s BoxSnapshot) TotalPoints() int { return model.TotalPoints(s.Successes) }

// Deposits returns main followed by the older deposits.
func (s BoxSnapshot) Deposits() []model.Deposit {
	out := make([]model.Deposit, 0, len(s.OlderDeposits)+1)
	if s.Main != nil {
		out = append(out, *s.Main)
	}
	return append(out, s.OlderDeposits...)
}

// SnapshotPatch is a partial snapshot. A nil pointer or nil slice means "not
// provided"; a non-nil empty slice means "now empty".
type SnapshotPatch struct {
	Main          *model.Deposit
	OlderDeposits []model.Deposit
	MyDeposit     *model.PartialDeposit
	Successes     []model.Achievement
}

// SnapshotStore merges and serves BoxSnapshots over a TTLStore.
type SnapshotStore struct {
	mu    sync.Mutex
	store TTLStore[BoxSnapshot]
	ttl   time.Duration
	now   func() time.Time
	log   Logger
}

func NewSnapshotStore(store TTLStore[BoxSnapshot], ttl time.Duration, now func() time.Time, log Logger) *SnapshotStore {
	if now == nil {
		now = time.Now
	}
	return &SnapshotStore{
		store: store,
		ttl:   coalesce[time.Duration](ttl, DefaultSnapshotTTL),
		now:   now,
		log:   coalesce[Logger](log, NopLogger{}),
	}
}

// Write merges patch into the current snapshot for slug and stores the result
// with a fresh TTL. Fields missing from patch keep their cached value; a
// cached snapshot for a different box is discarded, never merged.
func (s *SnapshotStore) Write(ctx context.Context, slug string, patch SnapshotPatch) BoxSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.store.GetValid(ctx, SnapshotKey)
	if ok && prev.BoxSlug != slug {
		s.log.Debug("snapshot belongs to another box; replacing", Fields{"cached": prev.BoxSlug, "box": slug})
		prev, ok = BoxSnapshot{}, false
	}

	next := BoxSnapshot{
		BoxSlug:   slug,
		Timestamp: s.now().UnixMilli(),
	}
	switch {
	case patch.Main != nil:
		m := patch.Main.Clone()
		next.Main = &m
	case ok:
		next.Main = prev.Main
	}
	switch {
	case patch.MyDeposit != nil:
		md := *patch.MyDeposit
		next.MyDeposit = &md
	case ok:
		next.MyDeposit = prev.MyDeposit
	}
	next.OlderDeposits = pickSlice(patch.OlderDeposits, prev.OlderDeposits, ok)
	next.Successes = pickSlice(patch.Successes, prev.Successes, ok)

	s.store.SetWithTTL(ctx, SnapshotKey, next, s.ttl)
	return next
}

// Read returns the snapshot for slug. It misses when nothing is cached, the
// entry expired, or the cached snapshot belongs to another box.
func (s *SnapshotStore) Read(ctx context.Context, slug string) (BoxSnapshot, bool) {
	snap, ok := s.store.GetValid(ctx, SnapshotKey)
	if !ok || snap.BoxSlug != slug {
		return BoxSnapshot{}, false
	}
	if snap.OlderDeposits == nil {
		snap.OlderDeposits = []model.Deposit{}
	}
	if snap.Successes == nil {
		snap.Successes = []model.Achievement{}
	}
	return snap, true
}

// UpdateDeposit applies fn to the cached copy of deposit id (main or older)
// and rewrites the snapshot. It reports whether the deposit was found.
func (s *SnapshotStore) UpdateDeposit(ctx context.Context, slug string, id model.DepositID, fn func(*model.Deposit)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.store.GetValid(ctx, SnapshotKey)
	if !ok || snap.BoxSlug != slug {
		return false
	}
	found := false
	if snap.Main != nil && snap.Main.ID == id {
		m := snap.Main.Clone()
		fn(&m)
		snap.Main = &m
		found = true
	}
	for i := range snap.OlderDeposits {
		if snap.OlderDeposits[i].ID == id {
			d := snap.OlderDeposits[i].Clone()
			fn(&d)
			snap.OlderDeposits[i] = d
			found = true
		}
	}
	if !found {
		return false
	}
	snap.Timestamp = s.now().UnixMilli()
	s.store.SetWithTTL(ctx, SnapshotKey, snap, s.ttl)
	return true
}

// Clear drops the snapshot whatever box it belongs to.
func (s *SnapshotStore) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Remove(ctx, SnapshotKey)
}

func pickSlice[T any](patch, prev []T, havePrev bool) []T {
	if patch != nil {
		return append(make([]T, 0, len(patch)), patch...)
	}
	if havePrev && prev != nil {
		return prev
	}
	return []T{}
}
