package musicbox

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/musicbox/geo"
	"github.com/unkn0wn-root/musicbox/model"
)

type fakeGateService struct {
	mu        sync.Mutex
	statuses  []int // consumed in order; the last one repeats
	verifyErr error
	deps      []model.Deposit
	verifies  int
	mains     int
	block     chan struct{} // when set, VerifyLocation waits for ctx
}

func (f *fakeGateService) VerifyLocation(ctx context.Context, _ string, _, _ float64) (int, error) {
	f.mu.Lock()
	f.verifies++
	block := f.block
	st := http.StatusOK
	if len(f.statuses) > 0 {
		st = f.statuses[0]
		if len(f.statuses) > 1 {
			f.statuses = f.statuses[1:]
		}
	}
	err := f.verifyErr
	f.mu.Unlock()
	if block != nil {
		close(block)
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return st, err
}

func (f *fakeGateService) GetMain(context.Context, string) ([]model.Deposit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mains++
	return f.deps, nil
}

func (f *fakeGateService) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifies, f.mains
}

type gateFixture struct {
	gate  *Gate
	svc   *fakeGateService
	snaps *SnapshotStore
	book  *DepositBook
	hooks *recordingHooks
}

func newGateFixture(t *testing.T, loc geo.Locator, svc *fakeGateService, mutate func(*GateOptions)) *gateFixture {
	t.Helper()
	snaps := newTestSnapshots(t, newMemProvider(), newFakeClock())
	h := &recordingHooks{}
	book := NewDepositBook()
	opts := GateOptions{
		Locator:        loc,
		Service:        svc,
		Snapshots:      snaps,
		Book:           book,
		DisableRecheck: true,
		Hooks:          h,
		Acquire:        geo.AcquireOptions{DisableWatch: true},
	}
	if mutate != nil {
		mutate(&opts)
	}
	g, err := NewGate("canal-st-martin", opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(g.Close)
	return &gateFixture{gate: g, svc: svc, snaps: snaps, book: book, hooks: h}
}

var here = geo.Static{Latitude: 48.8712, Longitude: 2.3655}

func TestGateGrantWritesSnapshot(t *testing.T) {
	ctx := context.Background()
	svc := &fakeGateService{deps: []model.Deposit{dep(1, "a", "b"), teaser(2), teaser(3)}}
	f := newGateFixture(t, here, svc, nil)

	out := f.gate.Enter(ctx)
	if !out.Granted() {
		t.Fatalf("outcome = %+v", out)
	}
	snap, ok := f.snaps.Read(ctx, "canal-st-martin")
	if !ok || snap.BoxSlug != "canal-st-martin" {
		t.Fatalf("snapshot not readable after grant")
	}
	if snap.Main == nil || snap.Main.ID != 1 || len(snap.OlderDeposits) != 2 {
		t.Fatalf("main/older split wrong: %+v", snap)
	}
	if len(f.book.List(ListOlder)) != 2 || len(f.book.List(ListMain)) != 1 {
		t.Fatalf("deposit book not seeded")
	}
	want := []GateState{GateRequestingPosition, GateVerifying, GateGranted}
	if len(f.hooks.transitions) != len(want) {
		t.Fatalf("transitions = %v", f.hooks.transitions)
	}
	for i := range want {
		if f.hooks.transitions[i] != want[i] {
			t.Fatalf("transitions = %v", f.hooks.transitions)
		}
	}
}

func TestGateStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		state  GateState
		reason DenialReason
	}{
		{http.StatusForbidden, GateDenied, ReasonTooFar},
		{http.StatusUnauthorized, GateDenied, ReasonLocationRequired},
		{http.StatusNotFound, GateError, ReasonVerificationFailed},
		{http.StatusBadGateway, GateError, ReasonVerificationFailed},
	}
	for _, tc := range cases {
		svc := &fakeGateService{statuses: []int{tc.status}, deps: []model.Deposit{teaser(1)}}
		f := newGateFixture(t, here, svc, nil)
		out := f.gate.Enter(context.Background())
		if out.State != tc.state || out.Reason != tc.reason {
			t.Fatalf("status %d: got %v/%v", tc.status, out.State, out.Reason)
		}
		if _, ok := f.snaps.Read(context.Background(), "canal-st-martin"); ok {
			t.Fatalf("status %d wrote a snapshot", tc.status)
		}
		if _, mains := svc.counts(); mains != 0 {
			t.Fatalf("status %d fetched contents", tc.status)
		}
	}
}

func TestGateTransportErrorIsTransient(t *testing.T) {
	svc := &fakeGateService{verifyErr: errors.New("connection reset")}
	f := newGateFixture(t, here, svc, nil)
	out := f.gate.Enter(context.Background())
	if out.State != GateError || !IsTransient(out.Err) {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestGateNoLocationIsDenied(t *testing.T) {
	svc := &fakeGateService{}
	f := newGateFixture(t, geo.Unavailable{}, svc, nil)
	out := f.gate.Enter(context.Background())
	if out.State != GateDenied || out.Reason != ReasonLocationRequired {
		t.Fatalf("outcome = %+v", out)
	}
	if !errors.Is(out.Err, geo.ErrUnsupported) {
		t.Fatalf("err = %v", out.Err)
	}
	if v, _ := svc.counts(); v != 0 {
		t.Fatalf("verified without a position")
	}
	if out.Reason.Message() != "location must be enabled" {
		t.Fatalf("message = %q", out.Reason.Message())
	}
}

func TestGateEmptyBox(t *testing.T) {
	svc := &fakeGateService{deps: []model.Deposit{}}
	f := newGateFixture(t, here, svc, nil)
	out := f.gate.Enter(context.Background())
	if out.State != GateError || out.Reason != ReasonEmptyBox {
		t.Fatalf("outcome = %+v", out)
	}
	if _, ok := f.snaps.Read(context.Background(), "canal-st-martin"); ok {
		t.Fatalf("empty box wrote a snapshot")
	}
}

func TestGateRecheckRevokes(t *testing.T) {
	revoked := make(chan Outcome, 1)
	svc := &fakeGateService{
		statuses: []int{http.StatusOK, http.StatusOK, http.StatusForbidden},
		deps:     []model.Deposit{teaser(1)},
	}
	f := newGateFixture(t, here, svc, func(o *GateOptions) {
		o.DisableRecheck = false
		o.RecheckInterval = 5 * time.Millisecond
		o.OnRevoked = func(out Outcome) { revoked <- out }
	})

	if out := f.gate.Enter(context.Background()); !out.Granted() {
		t.Fatalf("initial attempt: %+v", out)
	}
	select {
	case out := <-revoked:
		if out.State != GateDenied || out.Reason != ReasonTooFar {
			t.Fatalf("revoked with %+v", out)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("re-check never revoked access")
	}
	if f.gate.State() != GateDenied {
		t.Fatalf("state = %v", f.gate.State())
	}

	// the loop stopped: no further verifications
	v1, _ := svc.counts()
	time.Sleep(30 * time.Millisecond)
	if v2, _ := svc.counts(); v2 != v1 {
		t.Fatalf("loop kept running after revocation (%d -> %d)", v1, v2)
	}
	f.hooks.mu.Lock()
	defer f.hooks.mu.Unlock()
	if len(f.hooks.revoked) != 1 || f.hooks.revoked[0] != ReasonTooFar {
		t.Fatalf("revoked hook = %v", f.hooks.revoked)
	}
}

// lostLocator returns a fix for the first n calls, then reports denied
// permission.
type lostLocator struct {
	mu    sync.Mutex
	n     int
	calls int
}

func (l *lostLocator) CurrentPosition(ctx context.Context, _ geo.Options) (geo.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.calls > l.n {
		return geo.Position{}, geo.ErrPermissionDenied
	}
	return geo.Position{Latitude: here.Latitude, Longitude: here.Longitude}, nil
}

func (l *lostLocator) Watch(context.Context, geo.Options) (<-chan geo.Fix, error) {
	return nil, geo.ErrUnsupported
}

// barrierLocator holds the first two requests until both have arrived.
type barrierLocator struct {
	mu      sync.Mutex
	arrived int
	release chan struct{}
}

func (b *barrierLocator) CurrentPosition(ctx context.Context, _ geo.Options) (geo.Position, error) {
	b.mu.Lock()
	b.arrived++
	n := b.arrived
	if n == 2 {
		close(b.release)
	}
	b.mu.Unlock()
	if n <= 2 {
		select {
		case <-b.release:
		case <-ctx.Done():
			return geo.Position{}, ctx.Err()
		}
	}
	return geo.Position{Latitude: here.Latitude, Longitude: here.Longitude}, nil
}

func (b *barrierLocator) Watch(context.Context, geo.Options) (<-chan geo.Fix, error) {
	return nil, geo.ErrUnsupported
}

func waitRevoked(t *testing.T, h *recordingHooks) []DenialReason {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		n := len(h.revoked)
		h.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	// leave room for a second loop to revoke as well
	time.Sleep(60 * time.Millisecond)
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]DenialReason(nil), h.revoked...)
}

func TestGateRecheckWithoutPositionRevokes(t *testing.T) {
	revoked := make(chan Outcome, 1)
	svc := &fakeGateService{deps: []model.Deposit{teaser(1)}}
	f := newGateFixture(t, &lostLocator{n: 1}, svc, func(o *GateOptions) {
		o.DisableRecheck = false
		o.RecheckInterval = 5 * time.Millisecond
		o.OnRevoked = func(out Outcome) { revoked <- out }
	})

	if out := f.gate.Enter(context.Background()); !out.Granted() {
		t.Fatalf("initial attempt: %+v", out)
	}
	select {
	case out := <-revoked:
		if out.State != GateDenied || out.Reason != ReasonLocationRequired || !errors.Is(out.Err, geo.ErrPermissionDenied) {
			t.Fatalf("revoked with %+v", out)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("lost position never revoked access")
	}
	if v, _ := svc.counts(); v != 1 {
		t.Fatalf("verified %d times without a position", v)
	}
}

func TestGateEnterAgainReplacesLoop(t *testing.T) {
	svc := &fakeGateService{
		statuses: []int{http.StatusOK, http.StatusOK, http.StatusForbidden},
		deps:     []model.Deposit{teaser(1)},
	}
	f := newGateFixture(t, here, svc, func(o *GateOptions) {
		o.DisableRecheck = false
		o.RecheckInterval = 30 * time.Millisecond
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if out := f.gate.Enter(ctx); !out.Granted() {
			t.Fatalf("attempt %d: %+v", i, out)
		}
	}
	if got := waitRevoked(t, f.hooks); len(got) != 1 || got[0] != ReasonTooFar {
		t.Fatalf("revocations = %v", got)
	}
}

func TestGateOverlappingEntersArmOneLoop(t *testing.T) {
	var entered sync.WaitGroup
	var revokedCalls int
	var mu sync.Mutex
	svc := &fakeGateService{
		statuses: []int{http.StatusOK, http.StatusOK, http.StatusForbidden},
		deps:     []model.Deposit{teaser(1)},
	}
	loc := &barrierLocator{release: make(chan struct{})}
	f := newGateFixture(t, loc, svc, func(o *GateOptions) {
		o.DisableRecheck = false
		o.RecheckInterval = 5 * time.Millisecond
		o.OnRevoked = func(Outcome) {
			mu.Lock()
			revokedCalls++
			mu.Unlock()
		}
	})

	outs := make([]Outcome, 2)
	entered.Add(2)
	for i := range outs {
		go func(i int) {
			defer entered.Done()
			outs[i] = f.gate.Enter(context.Background())
		}(i)
	}
	entered.Wait()
	for i, out := range outs {
		if !out.Granted() {
			t.Fatalf("attempt %d: %+v", i, out)
		}
	}

	if got := waitRevoked(t, f.hooks); len(got) != 1 {
		t.Fatalf("revocations = %v, want exactly one loop", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if revokedCalls != 1 {
		t.Fatalf("OnRevoked ran %d times", revokedCalls)
	}
}

func TestGateCloseAbortsInFlight(t *testing.T) {
	started := make(chan struct{})
	svc := &fakeGateService{block: started}
	f := newGateFixture(t, here, svc, nil)

	done := make(chan Outcome, 1)
	go func() { done <- f.gate.Enter(context.Background()) }()
	<-started
	f.gate.Close()

	select {
	case out := <-done:
		if !errors.Is(out.Err, ErrClosed) {
			t.Fatalf("err = %v", out.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not abort the verification")
	}
	if out := f.gate.Enter(context.Background()); !errors.Is(out.Err, ErrClosed) {
		t.Fatalf("Enter after Close: %v", out.Err)
	}
}

func TestGateStateStrings(t *testing.T) {
	if GateRequestingPosition.String() != "requesting_position" || GateError.String() != "error" {
		t.Fatal("unexpected state names")
	}
	if !GateDenied.Terminal() || GateVerifying.Terminal() {
		t.Fatal("terminal classification wrong")
	}
}
