package musicbox

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/unkn0wn-root/musicbox/model"
)

// EmojiCatalog is one deposit's emoji catalog plus the user's ownership set.
type EmojiCatalog struct {
	basic []model.Emoji
	paid  []model.Emoji

	mu    sync.RWMutex
	owned map[model.EmojiID]struct{}
}

func NewEmojiCatalog(basic, paid []model.Emoji, owned []model.EmojiID) *EmojiCatalog {
	c := &EmojiCatalog{
		basic: slices.Clone(basic),
		paid:  slices.Clone(paid),
		owned: make(map[model.EmojiID]struct{}, len(owned)),
	}
	for _, id := range owned {
		c.owned[id] = struct{}{}
	}
	return c
}

func (c *EmojiCatalog) Basic() []model.Emoji { return slices.Clone(c.basic) }
func (c *EmojiCatalog) Paid() []model.Emoji  { return slices.Clone(c.paid) }

// Lookup finds an emoji by id in either list.
func (c *EmojiCatalog) Lookup(id model.EmojiID) (model.Emoji, bool) {
	for _, list := range [][]model.Emoji{c.basic, c.paid} {
		for _, e := range list {
			if e.ID == id {
				return e, true
			}
		}
	}
	return model.Emoji{}, false
}

func (c *EmojiCatalog) Owns(id model.EmojiID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.owned[id]
	return ok
}

// Usable reports whether e can be applied without a purchase.
func (c *EmojiCatalog) Usable(e model.Emoji) bool {
	return e.Free() || c.Owns(e.ID)
}

// Owned lists the owned ids in ascending order.
func (c *EmojiCatalog) Owned() []model.EmojiID {
	c.mu.RLock()
	out := make([]model.EmojiID, 0, len(c.owned))
	for id := range c.owned {
		out = append(out, id)
	}
	c.mu.RUnlock()
	slices.Sort(out)
	return out
}

func (c *EmojiCatalog) grant(id model.EmojiID) {
	c.mu.Lock()
	c.owned[id] = struct{}{}
	c.mu.Unlock()
}

// ReactionPicker holds one reaction interaction on a deposit: the catalog,
// the reaction the server knows about, and the user's pending choice.
type ReactionPicker struct {
	econ    *Economy
	slug    string
	deposit model.DepositID
	catalog *EmojiCatalog

	mu       sync.Mutex
	current  *model.EmojiID
	selected *model.EmojiID
}

func (p *ReactionPicker) Catalog() *EmojiCatalog  { return p.catalog }
func (p *ReactionPicker) Deposit() model.DepositID { return p.deposit }

// Current is the reaction the server has applied.
func (p *ReactionPicker) Current() *model.EmojiID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneID(p.current)
}

func (p *ReactionPicker) Selected() *model.EmojiID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneID(p.selected)
}

// Select chooses an emoji, or none when id is nil. A paid emoji the user does
// not own is bought first and only selected once the purchase succeeded.
func (p *ReactionPicker) Select(ctx context.Context, id *model.EmojiID) error {
	if id == nil {
		p.setSelected(nil)
		return nil
	}
	e, ok := p.catalog.Lookup(*id)
	if !ok {
		return fmt.Errorf("select %d: %w", *id, ErrUnknownEmoji)
	}
	if !p.catalog.Usable(e) {
		if err := p.econ.Purchase(ctx, p.slug, p.catalog, e.ID); err != nil {
			return err
		}
	}
	p.setSelected(id)
	return nil
}

// Changed reports whether the selection differs from the applied reaction.
func (p *ReactionPicker) Changed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !sameEmoji(p.current, p.selected)
}

// Commit applies the selection. An unchanged selection makes no request.
func (p *ReactionPicker) Commit(ctx context.Context) error {
	p.mu.Lock()
	current, selected := cloneID(p.current), cloneID(p.selected)
	p.mu.Unlock()

	if err := p.econ.ApplyReaction(ctx, p.slug, p.deposit, current, selected); err != nil {
		return err
	}
	p.mu.Lock()
	p.current = selected
	p.mu.Unlock()
	return nil
}

func (p *ReactionPicker) setSelected(id *model.EmojiID) {
	p.mu.Lock()
	p.selected = cloneID(id)
	p.mu.Unlock()
}

func cloneID(id *model.EmojiID) *model.EmojiID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
