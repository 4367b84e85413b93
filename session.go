package musicbox

import (
	"context"
	"errors"
	"time"

	c "github.com/unkn0wn-root/musicbox/codec"
	"github.com/unkn0wn-root/musicbox/genstore"
	"github.com/unkn0wn-root/musicbox/geo"
	pr "github.com/unkn0wn-root/musicbox/provider"
)

// Options wire a Session.
// Only Service and Provider are required; others have sensible defaults.
type Options struct {
	// Required
	Service  BoxService
	Provider pr.Provider // device store shared by the snapshot and the anonymous counter

	Namespace     string               // key prefix; "" => "musicbox"
	SnapshotCodec c.Codec[BoxSnapshot] // nil => codec.JSON
	Locator       geo.Locator          // nil => geo.Unavailable
	Acquire       geo.AcquireOptions   // zero => 10s one-shot, 15s watch fallback
	GenStore      genstore.GenStore    // nil => LocalGenStore per Searcher
	CacheDisabled bool                 // every cache read misses

	SnapshotTTL     time.Duration // 0 => 20m
	AnonymousTTL    time.Duration // 0 => 30d
	RecheckInterval time.Duration // 0 => 100s
	SearchDebounce  time.Duration // 0 => 400ms

	Logger Logger           // nil => NopLogger
	Hooks  Hooks            // nil => NopHooks
	Now    func() time.Time // nil => time.Now
}

// Session is one user's client state: the box snapshot, the normalized
// deposits, the account and the economy that mutates them. Gates and
// searchers are built per box visit and per search box.
type Session struct {
	opts      Options
	snapshots *SnapshotStore
	book      *DepositBook
	account   *AccountStore
	economy   *Economy
}

func New(opts Options) (*Session, error) {
	if opts.Service == nil {
		return nil, errors.New("musicbox: service is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("musicbox: provider is required")
	}
	opts.Namespace = coalesce(opts.Namespace, "musicbox")
	opts.SnapshotCodec = coalesce[c.Codec[BoxSnapshot]](opts.SnapshotCodec, c.JSON[BoxSnapshot]{})
	opts.Locator = coalesce[geo.Locator](opts.Locator, geo.Unavailable{})
	opts.Logger = coalesce[Logger](opts.Logger, NopLogger{})
	opts.Hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	if opts.Now == nil {
		opts.Now = time.Now
	}

	snapStore, err := NewTTLStore[BoxSnapshot](TTLOptions[BoxSnapshot]{
		Provider:   opts.Provider,
		Codec:      opts.SnapshotCodec,
		Namespace:  opts.Namespace,
		Logger:     opts.Logger,
		Hooks:      opts.Hooks,
		DefaultTTL: opts.SnapshotTTL,
		Disabled:   opts.CacheDisabled,
		Now:        opts.Now,
	})
	if err != nil {
		return nil, err
	}
	anonStore, err := NewTTLStore[int](TTLOptions[int]{
		Provider:   opts.Provider,
		Codec:      c.Int{},
		Namespace:  opts.Namespace,
		Logger:     opts.Logger,
		Hooks:      opts.Hooks,
		DefaultTTL: coalesce(opts.AnonymousTTL, DefaultAnonymousTTL),
		Disabled:   opts.CacheDisabled,
		Now:        opts.Now,
	})
	if err != nil {
		return nil, err
	}

	s := &Session{
		opts:      opts,
		snapshots: NewSnapshotStore(snapStore, opts.SnapshotTTL, opts.Now, opts.Logger),
		book:      NewDepositBook(),
		account:   NewAccountStore(anonStore, opts.AnonymousTTL, opts.Hooks, opts.Logger),
	}
	s.economy, err = NewEconomy(EconomyOptions{
		Service:   opts.Service,
		Snapshots: s.snapshots,
		Book:      s.book,
		Account:   s.account,
		Now:       opts.Now,
		Logger:    opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) Snapshots() *SnapshotStore { return s.snapshots }
func (s *Session) Deposits() *DepositBook    { return s.book }
func (s *Session) Account() *AccountStore    { return s.account }
func (s *Session) Economy() *Economy         { return s.economy }

// Snapshot reads the cached view for slug. ErrNoSnapshot means the caller
// must go back through the gate.
func (s *Session) Snapshot(ctx context.Context, slug string) (BoxSnapshot, error) {
	snap, ok := s.snapshots.Read(ctx, slug)
	if !ok {
		return BoxSnapshot{}, ErrNoSnapshot
	}
	return snap, nil
}

// OpenGate builds the gate for one box visit. Once granted, the main deposit
// is logged as discovered for signed-in users. The caller owns the gate and
// must Close it when the visit ends.
func (s *Session) OpenGate(slug string, onRevoked func(Outcome)) (*Gate, error) {
	return NewGate(slug, GateOptions{
		Locator:         s.opts.Locator,
		Service:         s.opts.Service,
		Snapshots:       s.snapshots,
		Book:            s.book,
		Acquire:         s.opts.Acquire,
		RecheckInterval: s.opts.RecheckInterval,
		OnGranted: func(ctx context.Context, snap BoxSnapshot) {
			if snap.Main != nil {
				s.economy.MarkDiscovered(ctx, snap.Main.ID, DiscoveredMain)
			}
		},
		OnRevoked: onRevoked,
		Logger:    s.opts.Logger,
		Hooks:     s.opts.Hooks,
	})
}

// NewSearcher builds a search box for platform. The caller must Close it.
func (s *Session) NewSearcher(platform string, onResult func(SearchResult)) (*Searcher, error) {
	return NewSearcher(SearchOptions{
		Service:  s.opts.Service,
		OnResult: onResult,
		Platform: platform,
		Debounce: s.opts.SearchDebounce,
		Gens:     s.opts.GenStore,
		Logger:   s.opts.Logger,
		Hooks:    s.opts.Hooks,
	})
}

// Close releases the provider and the shared generation store.
func (s *Session) Close(ctx context.Context) error {
	var errs []error
	if s.opts.GenStore != nil {
		errs = append(errs, s.opts.GenStore.Close(ctx))
	}
	errs = append(errs, s.opts.Provider.Close(ctx))
	return errors.Join(errs...)
}
