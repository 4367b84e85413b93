package musicbox

import (
	"context"

	"github.com/unkn0wn-root/musicbox/boxapi"
	"github.com/unkn0wn-root/musicbox/model"
)

// GateService is the slice of the box server the location gate talks to.
type GateService interface {
	VerifyLocation(ctx context.Context, boxSlug string, latitude, longitude float64) (int, error)
	GetMain(ctx context.Context, boxSlug string) ([]model.Deposit, error)
}

// EconomyService is the slice of the box server that moves points.
type EconomyService interface {
	Deposit(ctx context.Context, boxSlug string, option model.SongOption) (boxapi.DepositResult, error)
	Reveal(ctx context.Context, id model.DepositID, idempotencyKey string) (boxapi.RevealResult, error)
	EmojiCatalog(ctx context.Context, id model.DepositID) (boxapi.Catalog, error)
	PurchaseEmoji(ctx context.Context, id model.EmojiID, idempotencyKey string) (boxapi.PurchaseResult, error)
	React(ctx context.Context, id model.DepositID, emoji *model.EmojiID) (boxapi.ReactionResult, error)
	MarkDiscovered(ctx context.Context, id model.DepositID, kind string) error
}

// SearchService looks up songs on a streaming platform.
type SearchService interface {
	Search(ctx context.Context, platform, query string) ([]model.SongOption, error)
	RecentTracks(ctx context.Context, platform string) ([]model.SongOption, error)
}

// BoxService is everything a Session needs from the server.
type BoxService interface {
	GateService
	EconomyService
	SearchService
}

var _ BoxService = (*boxapi.Client)(nil)
