package musicbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/musicbox/boxapi"
	"github.com/unkn0wn-root/musicbox/internal/util"
	"github.com/unkn0wn-root/musicbox/model"
)

// discovered_type values
const (
	DiscoveredMain     = "main"
	DiscoveredRevealed = "revealed"
)

type idempotencyCtxKey struct{}

// WithIdempotencyKey pins the Idempotency-Key sent by Reveal and Purchase.
// Reuse the same key when retrying the same logical operation after a
// TransientError so the server applies the charge once.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyCtxKey{}, key)
}

func idempotencyKey(ctx context.Context) string {
	if k, ok := ctx.Value(idempotencyCtxKey{}).(string); ok && k != "" {
		return k
	}
	return uuid.NewString()
}

// EconomyOptions wire an Economy. Every field except Logger and Now is
// required.
type EconomyOptions struct {
	Service   EconomyService
	Snapshots *SnapshotStore
	Book      *DepositBook
	Account   *AccountStore

	Now    func() time.Time
	Logger Logger
}

// Economy runs every operation that spends or earns points. Local state is
// only touched after the server confirmed the operation; balances always
// come from the server.
type Economy struct {
	svc   EconomyService
	snaps *SnapshotStore
	book  *DepositBook
	acct  *AccountStore
	now   func() time.Time
	log   Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewEconomy(opts EconomyOptions) (*Economy, error) {
	if opts.Service == nil || opts.Snapshots == nil || opts.Book == nil || opts.Account == nil {
		return nil, errors.New("musicbox: economy needs a service, snapshots, a deposit book and an account store")
	}
	e := &Economy{
		svc:      opts.Service,
		snaps:    opts.Snapshots,
		book:     opts.Book,
		acct:     opts.Account,
		now:      opts.Now,
		log:      coalesce[Logger](opts.Logger, NopLogger{}),
		inflight: make(map[string]struct{}),
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// acquire marks op on entity as running. Buttons in a UI are disabled while a
// call is outstanding; this is the same guard for programmatic callers.
func (e *Economy) acquire(op string, id int64) (release func(), err error) {
	k := fmt.Sprintf("%s:%d", op, id)
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[k]; busy {
		return nil, ErrInFlight
	}
	e.inflight[k] = struct{}{}
	return func() {
		e.mu.Lock()
		delete(e.inflight, k)
		e.mu.Unlock()
	}, nil
}

func (e *Economy) requireAccount(op, slug string) error {
	if _, ok := e.acct.Current(); !ok {
		return &AuthRequiredError{Op: op, ReturnPath: util.ReturnPath(slug)}
	}
	return nil
}

// classify maps a server failure to the public error taxonomy.
func (e *Economy) classify(op, slug string, err error) error {
	switch {
	case boxapi.HasCode(err, boxapi.CodeInsufficientFunds):
		return fmt.Errorf("%s: %w", op, ErrInsufficientFunds)
	case boxapi.HasCode(err, boxapi.CodeForbidden):
		return fmt.Errorf("%s: %w", op, ErrForbidden)
	case boxapi.StatusCode(err) == http.StatusUnauthorized:
		return &AuthRequiredError{Op: op, ReturnPath: util.ReturnPath(slug)}
	case errors.Is(err, context.Canceled):
		return err
	default:
		return &TransientError{Op: op, Err: err}
	}
}

// Reveal spends points to uncover deposit id. On success the song fields are
// merged into every copy of the deposit and the balance is replaced by the
// server's.
func (e *Economy) Reveal(ctx context.Context, slug string, id model.DepositID) (model.Song, error) {
	if err := e.requireAccount("reveal", slug); err != nil {
		return model.Song{}, err
	}
	release, err := e.acquire("reveal", int64(id))
	if err != nil {
		return model.Song{}, err
	}
	defer release()

	res, err := e.svc.Reveal(ctx, id, idempotencyKey(ctx))
	if err != nil {
		e.log.Debug("reveal refused", Fields{"deposit": id, "err": err})
		return model.Song{}, e.classify("reveal", slug, err)
	}

	var song model.Song
	patch := func(d *model.Deposit) {
		s := d.Song.Merge(res.Song)
		d.Song = &s
		song = s
	}
	if !e.book.Update(id, patch) {
		song = res.Song
	}
	e.snaps.UpdateDeposit(ctx, slug, id, patch)
	if res.PointsBalance != nil {
		e.acct.ReplaceBalance(*res.PointsBalance)
	}
	e.log.Info("deposit revealed", Fields{"box": slug, "deposit": id})
	return song, nil
}

// Purchase buys a paid emoji. Emojis that are already usable cost nothing and
// make no request.
func (e *Economy) Purchase(ctx context.Context, slug string, cat *EmojiCatalog, id model.EmojiID) error {
	emoji, ok := cat.Lookup(id)
	if !ok {
		return fmt.Errorf("purchase %d: %w", id, ErrUnknownEmoji)
	}
	if cat.Usable(emoji) {
		return nil
	}
	if err := e.requireAccount("purchase", slug); err != nil {
		return err
	}
	release, err := e.acquire("purchase", int64(id))
	if err != nil {
		return err
	}
	defer release()

	res, err := e.svc.PurchaseEmoji(ctx, id, idempotencyKey(ctx))
	if err != nil {
		return e.classify("purchase", slug, err)
	}
	cat.grant(id)
	if res.PointsBalance != nil {
		e.acct.ReplaceBalance(*res.PointsBalance)
	}
	e.log.Info("emoji purchased", Fields{"emoji": id, "cost": emoji.Cost})
	return nil
}

// ApplyReaction sets (selected != nil) or clears the user's reaction on a
// deposit. Re-applying the current reaction is a no-op.
func (e *Economy) ApplyReaction(ctx context.Context, slug string, id model.DepositID, current, selected *model.EmojiID) error {
	if sameEmoji(current, selected) {
		return nil
	}
	if err := e.requireAccount("react", slug); err != nil {
		return err
	}
	release, err := e.acquire("react", int64(id))
	if err != nil {
		return err
	}
	defer release()

	res, err := e.svc.React(ctx, id, selected)
	if err != nil {
		if boxapi.StatusCode(err) == http.StatusForbidden {
			return fmt.Errorf("react: %w", ErrForbidden)
		}
		return e.classify("react", slug, err)
	}

	patch := func(d *model.Deposit) {
		d.MyReaction = nil
		if res.MyReaction != nil {
			r := *res.MyReaction
			d.MyReaction = &r
		}
		d.ReactionsSummary = append([]model.ReactionCount{}, res.ReactionsSummary...)
	}
	e.book.Update(id, patch)
	e.snaps.UpdateDeposit(ctx, slug, id, patch)
	return nil
}

func sameEmoji(a, b *model.EmojiID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// DepositOutcome is what the achievements panel renders after a deposit.
type DepositOutcome struct {
	Snapshot     BoxSnapshot
	Achievements []model.Achievement // line items, totals removed
	TotalPoints  int
	Added        *model.Deposit
}

// Deposit drops option into the box. Signed-in users get their balance
// replaced by the server's; otherwise the earned total accumulates in the
// anonymous counter. One deposit per box visit.
func (e *Economy) Deposit(ctx context.Context, slug string, option model.SongOption) (DepositOutcome, error) {
	if snap, ok := e.snaps.Read(ctx, slug); ok && snap.MyDeposit != nil {
		return DepositOutcome{}, ErrAlreadyDeposited
	}
	release, err := e.acquire("deposit", 0)
	if err != nil {
		return DepositOutcome{}, err
	}
	defer release()

	res, err := e.svc.Deposit(ctx, slug, option)
	if err != nil {
		return DepositOutcome{}, e.classify("deposit", slug, err)
	}

	total := model.TotalPoints(res.Successes)
	if res.PointsBalance != nil {
		e.acct.ReplaceBalance(*res.PointsBalance)
	} else {
		e.acct.AddAnonymousPoints(ctx, total)
	}

	var song model.Song
	switch {
	case res.Song != nil:
		song = *res.Song
	case res.AddedDeposit != nil && res.AddedDeposit.Song != nil:
		song = *res.AddedDeposit.Song
	default:
		song = option.AsSong()
	}
	patch := SnapshotPatch{
		MyDeposit:     &model.PartialDeposit{Song: &song, DepositedAt: e.now()},
		Successes:     res.Successes,
		Main:          res.Main,
		OlderDeposits: res.OlderDeposits,
	}
	if patch.Successes == nil {
		patch.Successes = []model.Achievement{}
	}
	snap := e.snaps.Write(ctx, slug, patch)

	if res.Main != nil {
		e.book.SetList(ListMain, []model.Deposit{*res.Main})
	}
	if res.OlderDeposits != nil {
		e.book.SetList(ListOlder, res.OlderDeposits)
	}
	e.log.Info("song deposited", Fields{"box": slug, "points": total, "anonymous": res.PointsBalance == nil})

	return DepositOutcome{
		Snapshot:     snap,
		Achievements: model.LineItems(res.Successes),
		TotalPoints:  total,
		Added:        res.AddedDeposit,
	}, nil
}

// OpenReactions loads the emoji catalog for deposit id and returns a picker
// seeded with the user's current reaction.
func (e *Economy) OpenReactions(ctx context.Context, slug string, id model.DepositID) (*ReactionPicker, error) {
	raw, err := e.svc.EmojiCatalog(ctx, id)
	if err != nil {
		return nil, e.classify("emoji-catalog", slug, err)
	}
	cat := NewEmojiCatalog(raw.Basic, raw.ActivesPaid, raw.OwnedIDs)

	var current *model.EmojiID
	if raw.CurrentReaction != nil {
		c := raw.CurrentReaction.ID
		current = &c
	} else if d, ok := e.book.Get(id); ok && d.MyReaction != nil && d.MyReaction.EmojiID != 0 {
		c := d.MyReaction.EmojiID
		current = &c
	}
	return &ReactionPicker{
		econ:     e,
		slug:     slug,
		deposit:  id,
		catalog:  cat,
		current:  current,
		selected: current,
	}, nil
}

// MarkDiscovered records that the signed-in user saw a deposit. It is
// best-effort: anonymous users and server refusals (already discovered) are
// ignored.
func (e *Economy) MarkDiscovered(ctx context.Context, id model.DepositID, kind string) {
	if _, ok := e.acct.Current(); !ok {
		return
	}
	if err := e.svc.MarkDiscovered(ctx, id, kind); err != nil {
		e.log.Debug("mark discovered failed", Fields{"deposit": id, "kind": kind, "err": err})
	}
}
