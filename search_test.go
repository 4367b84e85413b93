package musicbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/musicbox/model"
)

type fakeSearchService struct {
	mu      sync.Mutex
	queries []string
	recent  int
	hold    map[string]chan struct{} // query -> released when closed
	started chan string
	err     error
}

func (f *fakeSearchService) Search(ctx context.Context, platform, query string) ([]model.SongOption, error) {
	f.mu.Lock()
	f.queries = append(f.queries, platform+":"+query)
	hold := f.hold[query]
	f.mu.Unlock()
	if f.started != nil {
		f.started <- query
	}
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return []model.SongOption{{ID: model.FlexID(query), Name: query, Artist: "x"}}, nil
}

func (f *fakeSearchService) RecentTracks(context.Context, string) ([]model.SongOption, error) {
	f.mu.Lock()
	f.recent++
	f.mu.Unlock()
	return nil, nil
}

func (f *fakeSearchService) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

// downGens is a generation store whose backend is unreachable.
type downGens struct{}

func (downGens) Current(context.Context, string) (uint64, error) { return 0, errors.New("redis down") }
func (downGens) Bump(context.Context, string) (uint64, error)    { return 0, errors.New("redis down") }
func (downGens) Cleanup(time.Duration)                           {}
func (downGens) Close(context.Context) error                     { return nil }

func newTestSearcher(t *testing.T, svc *fakeSearchService, debounce time.Duration, h Hooks) (*Searcher, chan SearchResult) {
	t.Helper()
	return newTestSearcherWith(t, SearchOptions{Service: svc, Debounce: debounce, Hooks: h})
}

func newTestSearcherWith(t *testing.T, opts SearchOptions) (*Searcher, chan SearchResult) {
	t.Helper()
	results := make(chan SearchResult, 8)
	opts.OnResult = func(r SearchResult) { results <- r }
	s, err := NewSearcher(opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s, results
}

func waitResult(t *testing.T, ch chan SearchResult) SearchResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no search result")
		return SearchResult{}
	}
}

func TestSearchDebouncesKeystrokes(t *testing.T) {
	svc := &fakeSearchService{}
	s, results := newTestSearcher(t, svc, 30*time.Millisecond, nil)

	for _, q := range []string{"d", "da", "daf", "daft"} {
		s.Type(q)
		time.Sleep(2 * time.Millisecond)
	}
	r := waitResult(t, results)
	if r.Query != "daft" || r.Err != nil || len(r.Options) != 1 {
		t.Fatalf("result = %+v", r)
	}
	if got := svc.calls(); len(got) != 1 || got[0] != "spotify:daft" {
		t.Fatalf("calls = %v", got)
	}
}

func TestSearchDropsLateResponse(t *testing.T) {
	h := &recordingHooks{}
	svc := &fakeSearchService{
		hold:    map[string]chan struct{}{"daft": make(chan struct{})},
		started: make(chan string, 4),
	}
	s, results := newTestSearcher(t, svc, time.Millisecond, h)

	s.Type("daft")
	if q := <-svc.started; q != "daft" {
		t.Fatalf("started %q", q)
	}
	s.Type("daft punk")
	<-svc.started

	r := waitResult(t, results)
	if r.Query != "daft punk" {
		t.Fatalf("first delivered = %q", r.Query)
	}

	close(svc.hold["daft"])
	select {
	case r := <-results:
		t.Fatalf("stale result delivered: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.staleQuery) != 1 || h.staleQuery[0] != "daft" {
		t.Fatalf("stale hook = %v", h.staleQuery)
	}
}

func TestSearchDropsLateResponseWhenGenerationsFail(t *testing.T) {
	h := &recordingHooks{}
	svc := &fakeSearchService{
		hold:    map[string]chan struct{}{"daft": make(chan struct{})},
		started: make(chan string, 4),
	}
	s, results := newTestSearcherWith(t, SearchOptions{Service: svc, Debounce: time.Millisecond, Hooks: h, Gens: downGens{}})

	s.Type("daft")
	<-svc.started
	s.Type("daft punk")
	<-svc.started
	if r := waitResult(t, results); r.Query != "daft punk" {
		t.Fatalf("first delivered = %q", r.Query)
	}

	close(svc.hold["daft"])
	select {
	case r := <-results:
		t.Fatalf("stale result delivered: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.staleQuery) != 1 || h.staleQuery[0] != "daft" {
		t.Fatalf("stale hook = %v", h.staleQuery)
	}
}

func TestSearchEmptyQueryListsRecent(t *testing.T) {
	svc := &fakeSearchService{}
	s, results := newTestSearcher(t, svc, time.Millisecond, nil)
	s.Type("  ")
	r := waitResult(t, results)
	if r.Options == nil || len(r.Options) != 0 || svc.recent != 1 {
		t.Fatalf("result = %+v recent=%d", r, svc.recent)
	}
}

func TestSearchErrorIsTransient(t *testing.T) {
	svc := &fakeSearchService{err: errors.New("502")}
	s, results := newTestSearcher(t, svc, 20*time.Millisecond, nil)
	s.Type("air")
	s.SetPlatform(PlatformDeezer)
	r := waitResult(t, results)
	if !IsTransient(r.Err) || r.Platform != PlatformDeezer {
		t.Fatalf("result = %+v", r)
	}
}

func TestSearchCloseCancelsPending(t *testing.T) {
	svc := &fakeSearchService{}
	s, results := newTestSearcher(t, svc, 20*time.Millisecond, nil)
	s.Type("never sent")
	s.Close()
	s.Type("after close")
	time.Sleep(40 * time.Millisecond)
	if len(svc.calls()) != 0 || len(results) != 0 {
		t.Fatalf("calls after close: %v", svc.calls())
	}
}
