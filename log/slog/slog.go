//go:build go1.21

// Package slog adapts log/slog to musicbox.Logger.
package slog

import (
	"context"
	stdslog "log/slog"
	"sort"

	"github.com/unkn0wn-root/musicbox"
)

var _ musicbox.Logger = Logger{}

type Logger struct{ L *stdslog.Logger }

// New groups every attribute under "musicbox".
func New(h stdslog.Handler) Logger {
	return Logger{L: stdslog.New(h).WithGroup("musicbox")}
}

func (s Logger) Debug(msg string, f musicbox.Fields) { s.log(stdslog.LevelDebug, msg, f) }
func (s Logger) Info(msg string, f musicbox.Fields)  { s.log(stdslog.LevelInfo, msg, f) }
func (s Logger) Warn(msg string, f musicbox.Fields)  { s.log(stdslog.LevelWarn, msg, f) }
func (s Logger) Error(msg string, f musicbox.Fields) { s.log(stdslog.LevelError, msg, f) }

func (s Logger) log(level stdslog.Level, msg string, f musicbox.Fields) {
	ctx := context.Background()
	if !s.L.Enabled(ctx, level) {
		return
	}
	s.L.LogAttrs(ctx, level, msg, attrs(f)...)
}

func attrs(f musicbox.Fields) []stdslog.Attr {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]stdslog.Attr, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok {
			out = append(out, stdslog.String(k, err.Error()))
			continue
		}
		out = append(out, stdslog.Any(k, f[k]))
	}
	return out
}
