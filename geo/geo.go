// Package geo abstracts the device's location services.
//
// A Locator is whatever the embedding front end can offer: a browser bridge,
// a mobile SDK, gpsd, or a fixed point for tests and kiosks. Acquire wraps a
// Locator with the one-shot-then-watch strategy that works around platforms
// (notably iOS webviews) whose one-shot request fails until a watch has
// triggered the permission prompt.
package geo

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnsupported      = errors.New("geo: location services unsupported")
	ErrPermissionDenied = errors.New("geo: permission denied")
	ErrUnavailable      = errors.New("geo: position unavailable")
	ErrTimeout          = errors.New("geo: timed out")
)

// Position is a single fix.
type Position struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64 // meters; 0 when unknown
	Timestamp time.Time
}

// Options mirror the knobs device APIs accept.
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	// MaximumAge allows a cached fix up to this old.
	MaximumAge time.Duration
}

// Fix is one watch event.
type Fix struct {
	Position Position
	Err      error
}

// Locator is the device boundary.
type Locator interface {
	// CurrentPosition requests one fix. It must honour ctx cancellation.
	CurrentPosition(ctx context.Context, opts Options) (Position, error)
	// Watch streams fixes until ctx is done, then closes the channel.
	Watch(ctx context.Context, opts Options) (<-chan Fix, error)
}

// AcquireOptions configure Acquire. Zero values take the defaults.
type AcquireOptions struct {
	Primary        Options       // default: high accuracy, 10s timeout, 60s max age
	Fallback       Options       // default: high accuracy, 10s timeout, 15s max age
	FallbackBudget time.Duration // default: 15s
	DisableWatch   bool
}

func (o AcquireOptions) withDefaults() AcquireOptions {
	if o.Primary == (Options{}) {
		o.Primary = Options{HighAccuracy: true, Timeout: 10 * time.Second, MaximumAge: 60 * time.Second}
	}
	if o.Fallback == (Options{}) {
		o.Fallback = Options{HighAccuracy: true, Timeout: 10 * time.Second, MaximumAge: 15 * time.Second}
	}
	if o.FallbackBudget <= 0 {
		o.FallbackBudget = 15 * time.Second
	}
	return o
}

// Acquire gets one position: a one-shot request bounded by Primary.Timeout,
// then, if that fails, a watch bounded by FallbackBudget whose first fix wins.
// The watch is always cancelled before Acquire returns.
func Acquire(ctx context.Context, loc Locator, opts AcquireOptions) (Position, error) {
	if loc == nil {
		return Position{}, ErrUnsupported
	}
	opts = opts.withDefaults()

	pctx, cancel := context.WithTimeout(ctx, opts.Primary.Timeout)
	pos, err := loc.CurrentPosition(pctx, opts.Primary)
	cancel()
	if err == nil {
		return pos, nil
	}
	if errors.Is(pctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if ctx.Err() != nil {
		return Position{}, ctx.Err()
	}
	if opts.DisableWatch || errors.Is(err, ErrUnsupported) {
		return Position{}, err
	}
	primaryErr := err

	wctx, wcancel := context.WithTimeout(ctx, opts.FallbackBudget)
	defer wcancel()
	fixes, err := loc.Watch(wctx, opts.Fallback)
	if err != nil {
		return Position{}, primaryErr
	}
	select {
	case fix, ok := <-fixes:
		if ok && fix.Err == nil {
			return fix.Position, nil
		}
		if ok || wctx.Err() == nil {
			return Position{}, primaryErr
		}
	case <-wctx.Done():
	}
	if ctx.Err() != nil {
		return Position{}, ctx.Err()
	}
	return Position{}, fmt.Errorf("%w: watch fallback: %w", ErrTimeout, primaryErr)
}
