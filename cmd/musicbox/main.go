// Command musicbox visits one box from the terminal: it proves presence with
// fixed coordinates, prints the box content and can reveal a deposit or run a
// song search.
//
//	MUSICBOX_BASE_URL=https://box.example musicbox -box canal -lat 48.87 -lng 2.36
//	musicbox -box canal -lat 48.87 -lng 2.36 -session <cookie> -user ana -reveal 42
//	musicbox -box canal -lat 48.87 -lng 2.36 -search "daft punk" -platform deezer
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unkn0wn-root/musicbox"
	"github.com/unkn0wn-root/musicbox/boxapi"
	"github.com/unkn0wn-root/musicbox/config"
	"github.com/unkn0wn-root/musicbox/geo"
	"github.com/unkn0wn-root/musicbox/model"
)

type flags struct {
	envFile  string
	box      string
	info     bool
	lat, lng float64
	accuracy float64
	session  string
	user     string
	points   int
	reveal   int64
	search   string
	platform string
}

func parseFlags(fs *flag.FlagSet, args []string) (flags, error) {
	var f flags
	fs.StringVar(&f.envFile, "env", ".env", "env file loaded before the environment is parsed")
	fs.StringVar(&f.box, "box", "", "box slug (required)")
	fs.BoolVar(&f.info, "info", false, "print box metadata before entering")
	fs.Float64Var(&f.lat, "lat", 0, "latitude")
	fs.Float64Var(&f.lng, "lng", 0, "longitude")
	fs.Float64Var(&f.accuracy, "accuracy", 10, "reported accuracy in meters")
	fs.StringVar(&f.session, "session", "", "session cookie of a signed-in user")
	fs.StringVar(&f.user, "user", "", "username for the session cookie")
	fs.IntVar(&f.points, "points", 0, "points balance of the signed-in user")
	fs.Int64Var(&f.reveal, "reveal", 0, "deposit id to reveal after entering")
	fs.StringVar(&f.search, "search", "", "search songs after entering")
	fs.StringVar(&f.platform, "platform", musicbox.PlatformSpotify, "search platform: spotify or deezer")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.box == "" {
		return f, errors.New("-box is required")
	}
	if f.session != "" && f.user == "" {
		return f, errors.New("-session needs -user")
	}
	return f, nil
}

func main() {
	f, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, f); err != nil {
		fmt.Fprintln(os.Stderr, "musicbox:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags) error {
	cfg, err := config.Load(f.envFile)
	if err != nil {
		return err
	}
	rt, err := cfg.Build(ctx, os.Stderr, geo.Static{Latitude: f.lat, Longitude: f.lng, Accuracy: f.accuracy})
	if err != nil {
		return err
	}
	defer rt.Close()

	sess, err := musicbox.New(rt.Options)
	if err != nil {
		return err
	}
	defer sess.Close(context.Background())

	if f.session != "" {
		rt.Client.SetCookies([]*http.Cookie{{Name: boxapi.DefaultSessionCookie, Value: f.session}})
		sess.Account().SignIn(ctx, model.Account{Username: f.user, Points: f.points})
	}

	if f.info {
		info, err := rt.Client.GetBox(ctx, f.box)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%s: %d deposits, reveal costs %d points\n", f.box, info.DepositCount, info.RevealCost)
	}

	gate, err := sess.OpenGate(f.box, func(out musicbox.Outcome) {
		fmt.Fprintln(os.Stderr, "access revoked:", out.Reason.Message())
	})
	if err != nil {
		return err
	}
	defer gate.Close()

	out := gate.Enter(ctx)
	if !out.Granted() {
		if out.Err != nil {
			return fmt.Errorf("%s: %w", out.Reason.Message(), out.Err)
		}
		return errors.New(out.Reason.Message())
	}
	if err := printJSON(out.Snapshot); err != nil {
		return err
	}

	if f.reveal != 0 {
		song, err := sess.Economy().Reveal(ctx, f.box, model.DepositID(f.reveal))
		var auth *musicbox.AuthRequiredError
		switch {
		case errors.As(err, &auth):
			return fmt.Errorf("sign in first, then come back to %s", auth.ReturnPath)
		case errors.Is(err, musicbox.ErrInsufficientFunds):
			return fmt.Errorf("not enough points (balance %d)", sess.Account().Balance())
		case err != nil:
			return err
		}
		if err := printJSON(song); err != nil {
			return err
		}
	}

	if f.search != "" {
		return search(ctx, sess, f.platform, f.search)
	}
	return nil
}

func search(ctx context.Context, sess *musicbox.Session, platform, query string) error {
	results := make(chan musicbox.SearchResult, 1)
	s, err := sess.NewSearcher(platform, func(r musicbox.SearchResult) {
		select {
		case results <- r:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer s.Close()

	s.Type(query)
	select {
	case r := <-results:
		if r.Err != nil {
			return r.Err
		}
		return printJSON(r.Options)
	case <-time.After(30 * time.Second):
		return errors.New("search timed out")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
