// Package sloghooks reports musicbox hook events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/musicbox"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery    uint64
	StaleSearchEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
	// LogQueries includes raw search text in stale-search events.
	LogQueries bool
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	staleCtr    atomic.Uint64
}

var _ musicbox.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("musicbox.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) StoreWriteFailed(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("musicbox.store_write_failed",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) GateTransition(slug string, from, to musicbox.GateState) {
	if h.l == nil {
		return
	}
	h.l.Debug("musicbox.gate_transition",
		"box", slug,
		"from", from.String(),
		"to", to.String())
}

func (h *Hooks) AccessRevoked(slug string, reason musicbox.DenialReason) {
	if h.l == nil {
		return
	}
	h.l.Info("musicbox.access_revoked",
		"box", slug,
		"reason", string(reason))
}

func (h *Hooks) BalanceReplaced(previous, current int) {
	if h.l == nil {
		return
	}
	h.l.Info("musicbox.balance_replaced",
		"previous", previous,
		"current", current)
}

func (h *Hooks) AnonymousPointsDiscarded(points int) {
	if h.l == nil {
		return
	}
	h.l.Info("musicbox.anonymous_points_discarded", "points", points)
}

func (h *Hooks) StaleSearchDropped(query string) {
	if h.l == nil || !sample(h.opts.StaleSearchEvery, &h.staleCtr) {
		return
	}
	if !h.opts.LogQueries {
		query = h.redact(query)
	}
	h.l.Debug("musicbox.stale_search_dropped", "query", query)
}
