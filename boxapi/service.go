package boxapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/unkn0wn-root/musicbox/model"
)

const prefix = "/box-management"

// VerifyLocation posts the device position and returns the raw status code.
// The status is the only signal the caller needs: 200 inside the radius,
// 403 too far, 401 no location, anything else is a failure. A transport
// error is returned as err with status 0.
func (c *Client) VerifyLocation(ctx context.Context, boxSlug string, latitude, longitude float64) (int, error) {
	body := map[string]any{
		"latitude":  latitude,
		"longitude": longitude,
		"box":       map[string]string{"url": boxSlug},
	}
	status, _, err := c.do(ctx, http.MethodPost, prefix+"/verify-location", requestOpts{body: body})
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, nil
	}
	if err != nil {
		return 0, err
	}
	return status, nil
}

// GetMain returns the box's deposits, newest first. A body that is not an
// array is treated as an empty box.
func (c *Client) GetMain(ctx context.Context, boxSlug string) ([]model.Deposit, error) {
	_, body, err := c.do(ctx, http.MethodGet, prefix+"/get-main/"+url.PathEscape(boxSlug)+"/", requestOpts{})
	if err != nil {
		return nil, err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '[' {
		return []model.Deposit{}, nil
	}
	var out []model.Deposit
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("boxapi: decode get-main: %w", err)
	}
	return out, nil
}

// BoxInfo is the box metadata listing.
type BoxInfo struct {
	DepositCount int             `json:"deposit_count"`
	Box          json.RawMessage `json:"box"`
	Deposits     []model.Deposit `json:"deposits"`
	RevealCost   int             `json:"reveal_cost"`
}

func (c *Client) GetBox(ctx context.Context, boxSlug string) (BoxInfo, error) {
	var out BoxInfo
	err := c.doJSON(ctx, http.MethodGet, prefix+"/get-box", requestOpts{query: url.Values{"name": {boxSlug}}}, &out)
	return out, err
}

// DepositResult is the server's answer to a new deposit. Main and
// OlderDeposits are only present on newer servers.
type DepositResult struct {
	Successes     []model.Achievement `json:"successes"`
	PointsBalance *int                `json:"points_balance"`
	AddedDeposit  *model.Deposit      `json:"added_deposit"`
	Main          *model.Deposit      `json:"main"`
	OlderDeposits []model.Deposit     `json:"older_deposits"`
	Song          *model.Song         `json:"song"`
}

func (c *Client) Deposit(ctx context.Context, boxSlug string, option model.SongOption) (DepositResult, error) {
	var out DepositResult
	ro := requestOpts{
		query: url.Values{"slug": {boxSlug}},
		body:  map[string]any{"option": option, "boxSlug": boxSlug},
	}
	err := c.doJSON(ctx, http.MethodPost, prefix+"/get-box/", ro, &out)
	return out, err
}

type RevealResult struct {
	Song          model.Song `json:"song"`
	PointsBalance *int       `json:"points_balance"`
}

func (c *Client) Reveal(ctx context.Context, id model.DepositID, idempotencyKey string) (RevealResult, error) {
	var out RevealResult
	ro := requestOpts{
		body:    map[string]any{"deposit_id": id},
		headers: map[string]string{IdempotencyHeader: idempotencyKey},
	}
	err := c.doJSON(ctx, http.MethodPost, prefix+"/revealSong", ro, &out)
	return out, err
}

// Catalog is the emoji catalog for one reaction interaction.
type Catalog struct {
	Basic           []model.Emoji   `json:"basic"`
	ActivesPaid     []model.Emoji   `json:"actives_paid"`
	OwnedIDs        []model.EmojiID `json:"owned_ids"`
	CurrentReaction *model.Emoji    `json:"current_reaction"`
}

func (c *Client) EmojiCatalog(ctx context.Context, id model.DepositID) (Catalog, error) {
	var out Catalog
	q := url.Values{"deposit_id": {strconv.FormatInt(int64(id), 10)}}
	err := c.doJSON(ctx, http.MethodGet, prefix+"/emojis/catalog", requestOpts{query: q}, &out)
	return out, err
}

type PurchaseResult struct {
	PointsBalance *int `json:"points_balance"`
}

func (c *Client) PurchaseEmoji(ctx context.Context, id model.EmojiID, idempotencyKey string) (PurchaseResult, error) {
	var out PurchaseResult
	ro := requestOpts{
		body:    map[string]any{"emoji_id": id},
		headers: map[string]string{IdempotencyHeader: idempotencyKey},
	}
	err := c.doJSON(ctx, http.MethodPost, prefix+"/emojis/purchase", ro, &out)
	return out, err
}

type ReactionResult struct {
	MyReaction       *model.Reaction       `json:"my_reaction"`
	ReactionsSummary []model.ReactionCount `json:"reactions_summary"`
}

// React sets (emoji != nil) or clears (emoji == nil) the caller's reaction.
func (c *Client) React(ctx context.Context, id model.DepositID, emoji *model.EmojiID) (ReactionResult, error) {
	var out ReactionResult
	ro := requestOpts{body: map[string]any{"deposit_id": id, "emoji_id": emoji}}
	err := c.doJSON(ctx, http.MethodPost, prefix+"/reactions", ro, &out)
	return out, err
}

// MarkDiscovered records that the user saw a deposit ("main" or "revealed").
func (c *Client) MarkDiscovered(ctx context.Context, id model.DepositID, kind string) error {
	ro := requestOpts{body: map[string]any{"deposit_id": id, "discovered_type": kind}}
	return c.doJSON(ctx, http.MethodPost, prefix+"/discovered-songs", ro, nil)
}

// Search queries a streaming platform ("spotify" or "deezer").
func (c *Client) Search(ctx context.Context, platform, query string) ([]model.SongOption, error) {
	ro := requestOpts{body: map[string]string{"search_query": query}}
	return c.tracks(ctx, http.MethodPost, "/"+url.PathEscape(platform)+"/search", ro)
}

// RecentTracks lists the user's recently played tracks on a platform.
func (c *Client) RecentTracks(ctx context.Context, platform string) ([]model.SongOption, error) {
	return c.tracks(ctx, http.MethodGet, "/"+url.PathEscape(platform)+"/recent-tracks", requestOpts{})
}

func (c *Client) tracks(ctx context.Context, method, path string, ro requestOpts) ([]model.SongOption, error) {
	_, body, err := c.do(ctx, method, path, ro)
	if err != nil {
		return nil, err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '[' {
		return []model.SongOption{}, nil
	}
	var out []model.SongOption
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("boxapi: decode %s: %w", path, err)
	}
	return out, nil
}
