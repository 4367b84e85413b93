// Package zerolog adapts a zerolog.Logger to musicbox.Logger.
package zerolog

import (
	"github.com/rs/zerolog"

	"github.com/unkn0wn-root/musicbox"
)

var _ musicbox.Logger = Logger{}

type Logger struct{ L zerolog.Logger }

// New tags every event with component=musicbox.
func New(l zerolog.Logger) Logger {
	return Logger{L: l.With().Str("component", "musicbox").Logger()}
}

func (z Logger) Debug(msg string, f musicbox.Fields) { emit(z.L.Debug(), msg, f) }
func (z Logger) Info(msg string, f musicbox.Fields)  { emit(z.L.Info(), msg, f) }
func (z Logger) Warn(msg string, f musicbox.Fields)  { emit(z.L.Warn(), msg, f) }
func (z Logger) Error(msg string, f musicbox.Fields) { emit(z.L.Error(), msg, f) }

// emit is a no-op for disabled levels: zerolog hands back a nil event.
func emit(e *zerolog.Event, msg string, f musicbox.Fields) {
	if e == nil {
		return
	}
	for k, v := range f {
		if err, ok := v.(error); ok {
			e = e.AnErr(k, err)
			continue
		}
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}
