// Package model holds the wire shapes exchanged with the box server and
// stored in the session snapshot.
package model

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// DepositID identifies a deposit across every list that renders it.
type DepositID int64

// EmojiID identifies a catalog emoji.
type EmojiID int64

// User is the author of a deposit as the server exposes it.
type User struct {
	ID            int64  `json:"id,omitempty"`
	Name          string `json:"name,omitempty"`
	Username      string `json:"username,omitempty"`
	ProfilePicURL string `json:"profile_pic_url,omitempty"`
}

// Song carries either the full song or a teaser. Teasers only have ID,
// ImageURL and Cost.
type Song struct {
	ID         int64  `json:"id,omitempty"`
	Title      string `json:"title,omitempty"`
	Artist     string `json:"artist,omitempty"`
	SpotifyURL string `json:"spotify_url,omitempty"`
	DeezerURL  string `json:"deezer_url,omitempty"`
	ImageURL   string `json:"img_url,omitempty"`
	Cost       int    `json:"cost,omitempty"`
}

// Revealed reports whether both title and artist are known.
func (s *Song) Revealed() bool {
	return s != nil && s.Title != "" && s.Artist != ""
}

// Merge overlays the non-empty fields of other onto a copy of s.
func (s *Song) Merge(other Song) Song {
	var out Song
	if s != nil {
		out = *s
	}
	if other.ID != 0 {
		out.ID = other.ID
	}
	if other.Title != "" {
		out.Title = other.Title
	}
	if other.Artist != "" {
		out.Artist = other.Artist
	}
	if other.SpotifyURL != "" {
		out.SpotifyURL = other.SpotifyURL
	}
	if other.DeezerURL != "" {
		out.DeezerURL = other.DeezerURL
	}
	if other.ImageURL != "" {
		out.ImageURL = other.ImageURL
	}
	if other.Cost != 0 {
		out.Cost = other.Cost
	}
	return out
}

// Reaction is the emoji a user attached to a deposit.
type Reaction struct {
	EmojiID   EmojiID `json:"id,omitempty"`
	Emoji     string  `json:"emoji"`
	ReactedAt string  `json:"reacted_at,omitempty"`
}

// ReactionCount is one line of a deposit's reactions summary.
type ReactionCount struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

// Deposit is one song entry in a box.
type Deposit struct {
	ID                DepositID       `json:"deposit_id"`
	Date              string          `json:"deposit_date,omitempty"`
	User              *User           `json:"user"`
	Song              *Song           `json:"song"`
	MyReaction        *Reaction       `json:"my_reaction"`
	ReactionsSummary  []ReactionCount `json:"reactions_summary,omitempty"`
	AlreadyDiscovered bool            `json:"already_discovered,omitempty"`
	DiscoveredAt      string          `json:"discovered_at,omitempty"`
}

// Revealed is derived from the song fields on every call, never stored.
func (d Deposit) Revealed() bool { return d.Song.Revealed() }

// Clone returns a deep copy so callers can patch without aliasing.
func (d Deposit) Clone() Deposit {
	out := d
	if d.User != nil {
		u := *d.User
		out.User = &u
	}
	if d.Song != nil {
		s := *d.Song
		out.Song = &s
	}
	if d.MyReaction != nil {
		r := *d.MyReaction
		out.MyReaction = &r
	}
	if d.ReactionsSummary != nil {
		out.ReactionsSummary = append([]ReactionCount(nil), d.ReactionsSummary...)
	}
	return out
}

// PartialDeposit is the user's own deposit as remembered by the client.
type PartialDeposit struct {
	Song        *Song     `json:"song"`
	DepositedAt time.Time `json:"deposited_at"`
}

// Achievement is one earned success after a deposit.
type Achievement struct {
	Name   string `json:"name"`
	Desc   string `json:"desc,omitempty"`
	Points int    `json:"points"`
	Emoji  string `json:"emoji,omitempty"`
}

// reserved achievement names carry the total, not a line item
const (
	AchievementTotal       = "total"
	AchievementPointsTotal = "points_total"
)

// Reserved reports whether the achievement is a total marker.
func (a Achievement) Reserved() bool {
	n := strings.ToLower(strings.TrimSpace(a.Name))
	return n == AchievementTotal || n == AchievementPointsTotal
}

// TotalPoints returns the points of the "total" achievement, falling back to
// "points_total", else 0.
func TotalPoints(successes []Achievement) int {
	var fallback *int
	for i := range successes {
		switch strings.ToLower(strings.TrimSpace(successes[i].Name)) {
		case AchievementTotal:
			return successes[i].Points
		case AchievementPointsTotal:
			if fallback == nil {
				fallback = &successes[i].Points
			}
		}
	}
	if fallback != nil {
		return *fallback
	}
	return 0
}

// LineItems drops the reserved total markers.
func LineItems(successes []Achievement) []Achievement {
	out := make([]Achievement, 0, len(successes))
	for _, a := range successes {
		if !a.Reserved() {
			out = append(out, a)
		}
	}
	return out
}

// Emoji is a catalog entry.
type Emoji struct {
	ID    EmojiID `json:"id"`
	Char  string  `json:"char"`
	Cost  int     `json:"cost"`
	Basic bool    `json:"basic"`
}

// Free reports whether the emoji never needs a purchase.
func (e Emoji) Free() bool { return e.Basic || e.Cost == 0 }

// SongOption is a search hit that can be deposited.
type SongOption struct {
	ID         FlexID `json:"id,omitempty"`
	Name       string `json:"name"`
	Artist     string `json:"artist"`
	ImageURL   string `json:"image_url,omitempty"`
	URL        string `json:"url,omitempty"`
	PlatformID int    `json:"platform_id,omitempty"`
	Duration   int    `json:"duration,omitempty"`
}

// AsSong normalises a search hit into the song layout used by snapshots.
func (o SongOption) AsSong() Song {
	return Song{Title: o.Name, Artist: o.Artist, ImageURL: o.ImageURL}
}

// Account is the signed-in user as the client knows it.
type Account struct {
	Username          string `json:"username"`
	Points            int    `json:"points"`
	PreferredPlatform string `json:"preferred_platform,omitempty"`
}

// FlexID accepts a JSON string or number. Spotify ids are strings, Deezer
// ids are numbers.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}
