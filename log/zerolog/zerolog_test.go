package zerolog

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/unkn0wn-root/musicbox"
)

func TestZerologLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(zerolog.New(&buf).Level(zerolog.InfoLevel))

	l.Debug("hidden", musicbox.Fields{"a": 1})
	if buf.Len() != 0 {
		t.Fatalf("debug written: %s", buf.String())
	}

	l.Info("song deposited", musicbox.Fields{"box": "canal", "points": 15, "err": errors.New("none")})
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["level"] != "info" || rec["message"] != "song deposited" || rec["component"] != "musicbox" {
		t.Fatalf("record = %v", rec)
	}
	if rec["box"] != "canal" || rec["points"] != float64(15) || rec["err"] != "none" {
		t.Fatalf("fields = %v", rec)
	}
}
