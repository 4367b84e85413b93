package musicbox

// Fields is a minimal structured field map for logs.
type Fields map[string]any

// Logger is the leveled logger the session core writes to. Wrap your logging
// stack with one of the adapters under log/. A nil Logger in Options means
// NopLogger.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}
