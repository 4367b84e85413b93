package geo

import (
	"context"
	"time"
)

// Static always reports the same point. Used by the CLI (coordinates from
// flags) and by kiosks bolted next to a box.
type Static struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
}

var _ Locator = Static{}

func (s Static) CurrentPosition(ctx context.Context, _ Options) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	return s.position(), nil
}

func (s Static) Watch(ctx context.Context, _ Options) (<-chan Fix, error) {
	ch := make(chan Fix, 1)
	ch <- Fix{Position: s.position()}
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (s Static) position() Position {
	return Position{Latitude: s.Latitude, Longitude: s.Longitude, Accuracy: s.Accuracy, Timestamp: time.Now()}
}

// Unavailable is a Locator for hosts without location services.
type Unavailable struct{}

var _ Locator = Unavailable{}

func (Unavailable) CurrentPosition(context.Context, Options) (Position, error) {
	return Position{}, ErrUnsupported
}

func (Unavailable) Watch(context.Context, Options) (<-chan Fix, error) {
	return nil, ErrUnsupported
}
