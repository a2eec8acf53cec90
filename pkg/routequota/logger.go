package routequota

// Field is a key/value pair attached to a log line.
type Field struct {
	Key   string
	Value interface{}
}

// Logger is the structured logger used by the tracker, the scorer and the
// resolver. Adapters live under logger/.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// ErrorField logs err under "error". A nil error logs as an empty string.
func ErrorField(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: ""}
	}
	return Field{Key: "error", Value: err.Error()}
}

// APIField logs the metered API name under "api".
func APIField(api string) Field {
	return Field{Key: "api", Value: api}
}

// CallsignField logs a flight callsign under "callsign".
func CallsignField(callsign string) Field {
	return Field{Key: "callsign", Value: callsign}
}

// NoopLogger discards everything.
type NoopLogger struct{}

func (n *NoopLogger) Debug(msg string, fields ...Field) {}
func (n *NoopLogger) Info(msg string, fields ...Field)  {}
func (n *NoopLogger) Warn(msg string, fields ...Field)  {}
func (n *NoopLogger) Error(msg string, fields ...Field) {}
