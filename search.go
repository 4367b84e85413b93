package musicbox

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/unkn0wn-root/musicbox/genstore"
	"github.com/unkn0wn-root/musicbox/model"
)

// streaming platforms the server can search
const (
	PlatformSpotify = "spotify"
	PlatformDeezer  = "deezer"
)

// SearchResult is one delivered search. Options is empty, never nil, on
// success.
type SearchResult struct {
	Query    string
	Platform string
	Options  []model.SongOption
	Err      error
}

// SearchOptions configure a Searcher. Service and OnResult are required.
type SearchOptions struct {
	Service  SearchService
	OnResult func(SearchResult)

	Platform string        // "" => PlatformSpotify
	Debounce time.Duration // 0 => DefaultSearchDebounce
	// Gens tags requests; nil => a private LocalGenStore.
	Gens genstore.GenStore
	// Key is the generation key; "" => "search".
	Key string

	Logger Logger
	Hooks  Hooks
}

// Searcher is search-as-you-type: every keystroke restarts a quiet-period
// timer, and only the response to the latest keystroke is delivered.
// OnResult runs on a timer goroutine and must not call Close.
type Searcher struct {
	svc      SearchService
	onResult func(SearchResult)
	debounce time.Duration
	gens     genstore.GenStore
	ownGens  bool
	key      string
	log      Logger
	hooks    Hooks

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	platform string
	query    string
	timer    *time.Timer
	seq      uint64 // local sequence; decides staleness when the store fails
	closed   bool
}

func NewSearcher(opts SearchOptions) (*Searcher, error) {
	if opts.Service == nil || opts.OnResult == nil {
		return nil, errors.New("musicbox: searcher needs a service and a result callback")
	}
	s := &Searcher{
		svc:      opts.Service,
		onResult: opts.OnResult,
		debounce: coalesce[time.Duration](opts.Debounce, DefaultSearchDebounce),
		gens:     opts.Gens,
		key:      coalesce(opts.Key, "search"),
		platform: coalesce(opts.Platform, PlatformSpotify),
		log:      coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:    coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
	if s.gens == nil {
		s.gens = genstore.NewLocalGenStore(0, 0)
		s.ownGens = true
	}
	s.base, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Type records the current input. The request goes out once the input has
// been quiet for the debounce period; an empty query lists recent tracks.
func (s *Searcher) Type(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.query = query
	s.scheduleLocked()
}

// SetPlatform switches platform and re-runs the current input.
func (s *Searcher) SetPlatform(platform string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || platform == s.platform {
		return
	}
	s.platform = platform
	s.scheduleLocked()
}

// searchTag identifies one scheduled request. gen is 0 when the shared store
// could not hand one out; seq is always set.
type searchTag struct {
	gen uint64
	seq uint64
}

func (s *Searcher) scheduleLocked() {
	s.seq++
	tag := searchTag{seq: s.seq}
	gen, err := s.gens.Bump(s.base, s.key)
	if err != nil {
		s.log.Warn("search generation bump failed", Fields{"key": s.key, "err": err})
	} else {
		tag.gen = gen
	}
	if s.timer != nil && s.timer.Stop() {
		s.wg.Done()
	}
	query, platform := s.query, s.platform
	s.wg.Add(1)
	s.timer = time.AfterFunc(s.debounce, func() {
		defer s.wg.Done()
		s.run(query, platform, tag)
	})
}

// current reports whether tag is still the latest request. A shared
// generation is authoritative when present and readable; otherwise the local
// sequence decides.
func (s *Searcher) current(ctx context.Context, tag searchTag) bool {
	if tag.gen != 0 {
		ok, err := genstore.IsCurrent(ctx, s.gens, s.key, tag.gen)
		if err == nil {
			return ok
		}
		s.log.Warn("search generation read failed", Fields{"key": s.key, "err": err})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return tag.seq == s.seq
}

func (s *Searcher) run(query, platform string, tag searchTag) {
	ctx := s.base
	var (
		opts []model.SongOption
		err  error
	)
	if strings.TrimSpace(query) == "" {
		opts, err = s.svc.RecentTracks(ctx, platform)
	} else {
		opts, err = s.svc.Search(ctx, platform, query)
	}
	if ctx.Err() != nil {
		return
	}

	if !s.current(ctx, tag) {
		s.hooks.StaleSearchDropped(query)
		s.log.Debug("stale search response dropped", Fields{"query": query, "gen": tag.gen, "seq": tag.seq})
		return
	}

	res := SearchResult{Query: query, Platform: platform, Options: opts}
	if err != nil {
		res.Err = &TransientError{Op: "search", Err: err}
		res.Options = nil
	}
	if res.Err == nil && res.Options == nil {
		res.Options = []model.SongOption{}
	}
	s.onResult(res)
}

// Close cancels the pending timer and any in-flight request, then waits for
// running callbacks.
func (s *Searcher) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil && s.timer.Stop() {
		s.wg.Done()
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	if s.ownGens {
		_ = s.gens.Close(context.Background())
	}
}
