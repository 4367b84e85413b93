// Package logrus adapts logrus to musicbox.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/musicbox"
)

var _ musicbox.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New tags every entry with component=musicbox.
func New(l *logrus.Logger) Logger {
	return Logger{E: l.WithField("component", "musicbox")}
}

func (l Logger) Debug(msg string, f musicbox.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f musicbox.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f musicbox.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f musicbox.Fields) { l.with(f).Error(msg) }

// with routes an "err" field through WithError so formatters render it as
// logrus.ErrorKey.
func (l Logger) with(f musicbox.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	rest := make(logrus.Fields, len(f))
	e := l.E
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			e = e.WithError(err)
			continue
		}
		rest[k] = v
	}
	return e.WithFields(rest)
}
