package log

// Logger receives capture events.
// Pass nil or NoopLogger to disable capture.
type Logger interface {
	// Log records an event. It is called from the event loop goroutine, so
	// implementations should return quickly.
	Log(event Event)
}

// NoopLogger discards all events. It is usable as a zero value.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// OrNoop returns l, or NoopLogger when l is nil.
func OrNoop(l Logger) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return l
}

// Compile-time interface satisfaction check.
var _ Logger = NoopLogger{}
