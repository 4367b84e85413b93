package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/unkn0wn-root/musicbox"
)

func newTestHooks(opts Options) (*Hooks, *bytes.Buffer) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(l, opts), &buf
}

func TestRedactsKeysByDefault(t *testing.T) {
	h, buf := newTestHooks(Options{})
	h.StoreWriteFailed("musicbox:mm_box_content", errors.New("quota"))
	out := buf.String()
	if strings.Contains(out, "mm_box_content") {
		t.Fatalf("raw key logged: %s", out)
	}
	if !strings.Contains(out, "musicbox.store_write_failed") || !strings.Contains(out, "quota") {
		t.Fatalf("output = %s", out)
	}
}

func TestCustomRedactor(t *testing.T) {
	h, buf := newTestHooks(Options{Redact: func(k string) string { return "k:" + k }})
	h.SelfHeal("anon_points", "expired")
	if !strings.Contains(buf.String(), "k:anon_points") {
		t.Fatalf("output = %s", buf.String())
	}
}

func TestSelfHealSampling(t *testing.T) {
	h, buf := newTestHooks(Options{SelfHealEvery: 3})
	for i := 0; i < 9; i++ {
		h.SelfHeal("k", "corrupt")
	}
	if n := strings.Count(buf.String(), "musicbox.self_heal"); n != 3 {
		t.Fatalf("logged %d self-heal events, want 3", n)
	}
}

func TestStaleSearchQueryRedactedUnlessAllowed(t *testing.T) {
	h, buf := newTestHooks(Options{})
	h.StaleSearchDropped("my secret crush song")
	if strings.Contains(buf.String(), "crush") {
		t.Fatalf("query logged: %s", buf.String())
	}

	h, buf = newTestHooks(Options{LogQueries: true})
	h.StaleSearchDropped("daft punk")
	if !strings.Contains(buf.String(), "daft punk") {
		t.Fatalf("output = %s", buf.String())
	}
}

func TestGateAndAccountEvents(t *testing.T) {
	h, buf := newTestHooks(Options{})
	h.GateTransition("canal", musicbox.GateVerifying, musicbox.GateGranted)
	h.AccessRevoked("canal", musicbox.ReasonTooFar)
	h.BalanceReplaced(100, 60)
	h.AnonymousPointsDiscarded(15)
	out := buf.String()
	for _, want := range []string{"to=granted", "reason=too_far", "current=60", "points=15"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %s", want, out)
		}
	}
}

func TestNilLoggerIsSilent(t *testing.T) {
	h := New(nil, Options{})
	h.SelfHeal("k", "r")
	h.StoreWriteFailed("k", errors.New("x"))
	h.StaleSearchDropped("q")
}
