package musicbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/unkn0wn-root/musicbox/geo"
	"github.com/unkn0wn-root/musicbox/model"
)

// GateState is the location gate's state machine.
type GateState int

const (
	GateIdle GateState = iota
	GateRequestingPosition
	GateVerifying
	GateGranted
	GateDenied
	GateError
)

func (s GateState) String() string {
	switch s {
	case GateIdle:
		return "idle"
	case GateRequestingPosition:
		return "requesting_position"
	case GateVerifying:
		return "verifying"
	case GateGranted:
		return "granted"
	case GateDenied:
		return "denied"
	case GateError:
		return "error"
	default:
		return fmt.Sprintf("GateState(%d)", int(s))
	}
}

// Terminal reports whether an attempt ends in s.
func (s GateState) Terminal() bool {
	return s == GateGranted || s == GateDenied || s == GateError
}

// DenialReason says why an attempt did not end in GateGranted.
type DenialReason string

const (
	ReasonNone               DenialReason = ""
	ReasonLocationRequired   DenialReason = "location_required"
	ReasonTooFar             DenialReason = "too_far"
	ReasonVerificationFailed DenialReason = "verification_failed"
	ReasonEmptyBox           DenialReason = "empty_box"
)

// Message is the user-facing text for r.
func (r DenialReason) Message() string {
	switch r {
	case ReasonLocationRequired:
		return "location must be enabled"
	case ReasonTooFar:
		return "too far from the location"
	case ReasonVerificationFailed:
		return "verification failed, retry"
	case ReasonEmptyBox:
		return "this box is empty"
	default:
		return ""
	}
}

// Outcome is the result of one gate attempt.
type Outcome struct {
	State    GateState
	Reason   DenialReason
	Position geo.Position
	// Snapshot is set when an Enter attempt is granted.
	Snapshot BoxSnapshot
	Err      error
}

func (o Outcome) Granted() bool { return o.State == GateGranted }

// GateOptions configure a Gate. Locator, Service and Snapshots are required.
type GateOptions struct {
	Locator   geo.Locator
	Service   GateService
	Snapshots *SnapshotStore
	Book      *DepositBook // optional; seeded with the main/older lists on grant

	Acquire         geo.AcquireOptions
	RecheckInterval time.Duration // 0 => DefaultRecheckInterval
	DisableRecheck  bool

	// OnGranted runs inside Enter after the snapshot was written.
	OnGranted func(context.Context, BoxSnapshot)
	// OnRevoked runs on the re-check goroutine when a background check
	// fails after access was granted. The loop has stopped by then.
	OnRevoked func(Outcome)

	Logger Logger
	Hooks  Hooks
}

// Gate proves the user stands at one box. Build one per box visit; Close it
// when the visit ends.
type Gate struct {
	slug      string
	loc       geo.Locator
	svc       GateService
	snaps     *SnapshotStore
	book      *DepositBook
	acq       geo.AcquireOptions
	interval  time.Duration
	recheck   bool
	onGranted func(context.Context, BoxSnapshot)
	onRevoked func(Outcome)
	log       Logger
	hooks     Hooks

	base       context.Context
	cancelBase context.CancelFunc

	mu       sync.Mutex
	state    GateState
	closed   bool
	attempt  uint64 // latest Enter; only it may arm the loop
	loop     uint64 // id of the running loop, 0 when none
	stopLoop context.CancelFunc

	subMu   sync.Mutex
	subs    map[int]func(GateState)
	nextSub int
}

func NewGate(slug string, opts GateOptions) (*Gate, error) {
	if slug == "" {
		return nil, errors.New("musicbox: gate needs a box slug")
	}
	if opts.Locator == nil || opts.Service == nil || opts.Snapshots == nil {
		return nil, errors.New("musicbox: gate needs a locator, a service and a snapshot store")
	}
	base, cancel := context.WithCancel(context.Background())
	return &Gate{
		slug:       slug,
		loc:        opts.Locator,
		svc:        opts.Service,
		snaps:      opts.Snapshots,
		book:       opts.Book,
		acq:        opts.Acquire,
		interval:   coalesce[time.Duration](opts.RecheckInterval, DefaultRecheckInterval),
		recheck:    !opts.DisableRecheck,
		onGranted:  opts.OnGranted,
		onRevoked:  opts.OnRevoked,
		log:        coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:      coalesce[Hooks](opts.Hooks, NopHooks{}),
		base:       base,
		cancelBase: cancel,
		subs:       make(map[int]func(GateState)),
	}, nil
}

func (g *Gate) Slug() string { return g.slug }

func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Enter runs one full attempt: position, verification and, on success, the
// content fetch that seeds the snapshot. A granted attempt arms the
// background re-check. Enter replaces any re-check loop already running.
func (g *Gate) Enter(ctx context.Context) Outcome {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return Outcome{State: GateError, Reason: ReasonVerificationFailed, Err: ErrClosed}
	}
	g.attempt++
	attempt := g.attempt
	g.stopLoopLocked()
	g.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(g.base, cancel)
	defer stop()

	out := g.check(ctx)
	if out.State != GateGranted {
		return g.finish(ctx, out)
	}

	deps, err := g.svc.GetMain(ctx, g.slug)
	if err != nil {
		out.State, out.Reason = GateError, ReasonVerificationFailed
		out.Err = &TransientError{Op: "get-main", Err: err}
		return g.finish(ctx, out)
	}
	if len(deps) == 0 {
		out.State, out.Reason = GateError, ReasonEmptyBox
		return g.finish(ctx, out)
	}

	main := deps[0]
	older := append([]model.Deposit{}, deps[1:]...)
	out.Snapshot = g.snaps.Write(ctx, g.slug, SnapshotPatch{Main: &main, OlderDeposits: older})
	if g.book != nil {
		g.book.SetList(ListMain, deps[:1])
		g.book.SetList(ListOlder, older)
	}
	g.log.Info("box access granted", Fields{"box": g.slug, "deposits": len(deps)})

	out = g.finish(ctx, out)
	if out.Granted() {
		if g.onGranted != nil {
			g.onGranted(ctx, out.Snapshot)
		}
		g.armRecheck(attempt)
	}
	return out
}

// check runs requesting_position -> verifying and maps the verdict. It does
// not set the terminal state.
func (g *Gate) check(ctx context.Context) Outcome {
	g.setState(GateRequestingPosition)
	pos, err := geo.Acquire(ctx, g.loc, g.acq)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{State: GateError, Reason: ReasonVerificationFailed, Err: ctx.Err()}
		}
		g.log.Debug("position unavailable", Fields{"box": g.slug, "err": err})
		return Outcome{State: GateDenied, Reason: ReasonLocationRequired, Err: err}
	}

	g.setState(GateVerifying)
	status, err := g.svc.VerifyLocation(ctx, g.slug, pos.Latitude, pos.Longitude)
	out := Outcome{Position: pos}
	switch {
	case err != nil:
		out.State, out.Reason = GateError, ReasonVerificationFailed
		out.Err = &TransientError{Op: "verify-location", Err: err}
	case status == http.StatusOK:
		out.State = GateGranted
	case status == http.StatusForbidden:
		out.State, out.Reason = GateDenied, ReasonTooFar
	case status == http.StatusUnauthorized:
		out.State, out.Reason = GateDenied, ReasonLocationRequired
	default:
		out.State, out.Reason = GateError, ReasonVerificationFailed
		out.Err = &TransientError{Op: "verify-location", Err: fmt.Errorf("unexpected status %d", status)}
	}
	return out
}

// finish publishes the terminal state. An attempt cut short by Close reports
// ErrClosed.
func (g *Gate) finish(ctx context.Context, out Outcome) Outcome {
	if g.base.Err() != nil {
		out = Outcome{State: GateError, Reason: ReasonVerificationFailed, Err: ErrClosed}
	} else if ctx.Err() != nil && out.Err == nil {
		out = Outcome{State: GateError, Reason: ReasonVerificationFailed, Err: ctx.Err()}
	}
	g.setState(out.State)
	return out
}

// armRecheck starts the loop for attempt unless a later Enter superseded it.
// At most one loop runs per gate.
func (g *Gate) armRecheck(attempt uint64) {
	if !g.recheck {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || attempt != g.attempt {
		return
	}
	g.stopLoopLocked()
	ctx, cancel := context.WithCancel(g.base)
	g.loop = attempt
	g.stopLoop = cancel
	go g.recheckLoop(ctx, attempt)
}

func (g *Gate) stopLoopLocked() {
	if g.stopLoop != nil {
		g.stopLoop()
	}
	g.stopLoop = nil
	g.loop = 0
}

func (g *Gate) recheckLoop(ctx context.Context, id uint64) {
	t := time.NewTicker(g.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		out := g.check(ctx)
		if ctx.Err() != nil {
			return
		}
		g.setState(out.State)
		if out.Granted() {
			g.log.Debug("presence re-confirmed", Fields{"box": g.slug})
			continue
		}

		g.mu.Lock()
		if g.loop != id {
			// replaced while checking; the new loop owns the gate
			g.mu.Unlock()
			return
		}
		g.stopLoopLocked()
		g.mu.Unlock()
		g.hooks.AccessRevoked(g.slug, out.Reason)
		g.log.Info("box access revoked", Fields{"box": g.slug, "reason": string(out.Reason), "err": out.Err})
		if g.onRevoked != nil {
			g.onRevoked(out)
		}
		return
	}
}

// Subscribe registers fn for every state transition.
func (g *Gate) Subscribe(fn func(GateState)) (cancel func()) {
	g.subMu.Lock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = fn
	g.subMu.Unlock()
	return func() {
		g.subMu.Lock()
		delete(g.subs, id)
		g.subMu.Unlock()
	}
}

func (g *Gate) setState(to GateState) {
	g.mu.Lock()
	from := g.state
	g.state = to
	g.mu.Unlock()
	if from == to {
		return
	}

	g.hooks.GateTransition(g.slug, from, to)
	g.subMu.Lock()
	fns := make([]func(GateState), 0, len(g.subs))
	for _, fn := range g.subs {
		fns = append(fns, fn)
	}
	g.subMu.Unlock()
	for _, fn := range fns {
		fn(to)
	}
}

// Close stops the re-check loop and aborts any in-flight attempt. It is safe
// to call more than once, including from OnRevoked.
func (g *Gate) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.stopLoopLocked()
	g.mu.Unlock()
	g.cancelBase()
}
