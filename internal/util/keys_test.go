package util

import "testing"

func TestKey(t *testing.T) {
	if got := Key("musicbox", "anon_points"); got != "musicbox:anon_points" {
		t.Fatalf("got %q", got)
	}
	if got := Key("", "anon_points"); got != "anon_points" {
		t.Fatalf("got %q", got)
	}
}

func TestReturnPathEscapesSlug(t *testing.T) {
	if got := ReturnPath("quai de jemmapes"); got != "/flowbox/quai%20de%20jemmapes/discover" {
		t.Fatalf("got %q", got)
	}
}
