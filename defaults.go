package musicbox

import "time"

const (
	// DefaultSnapshotTTL bounds an abandoned session; every write refreshes it.
	DefaultSnapshotTTL = 20 * time.Minute
	// DefaultRecheckInterval is how often a granted gate re-proves presence.
	DefaultRecheckInterval = 100 * time.Second
	// DefaultSearchDebounce is the quiet period before a search is sent.
	DefaultSearchDebounce = 400 * time.Millisecond
	// DefaultAnonymousTTL keeps the anonymous points counter for a month.
	DefaultAnonymousTTL = 30 * 24 * time.Hour

	// SnapshotKey is the single cache key holding the box snapshot, whichever
	// view wrote it.
	SnapshotKey = "mm_box_content"
	// AnonymousPointsKey holds the points earned while signed out.
	AnonymousPointsKey = "anon_points"
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
