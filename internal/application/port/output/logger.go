package output

type LoggerPort interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	WithField(key string, value any) LoggerPort
	WithFields(fields map[string]any) LoggerPort

	Close() error
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any)                   {}
func (NopLogger) Info(string, ...any)                    {}
func (NopLogger) Warn(string, ...any)                    {}
func (NopLogger) Error(string, ...any)                   {}
func (l NopLogger) WithField(string, any) LoggerPort     { return l }
func (l NopLogger) WithFields(map[string]any) LoggerPort { return l }
func (NopLogger) Close() error                           { return nil }
