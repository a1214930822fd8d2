package objgraph

import "github.com/google/uuid"

// LogLevel orders log events by severity.
type LogLevel uint8

const (
	LevelDebug LogLevel = iota
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	default:
		return "error"
	}
}

// LogEvent describes a recoverable condition met while reading, writing or
// patching an object tree.
type LogEvent struct {
	Level     LogLevel
	Component string
	Message   string
	TypeName  string
	Property  string
	ObjectID  uuid.UUID
	Err       error
}

// Logger records log events.
type Logger interface {
	Log(LogEvent)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(LogEvent)

// Log implements Logger.
func (f LoggerFunc) Log(event LogEvent) {
	if f != nil {
		f(event)
	}
}

type noopLogger struct{}

func (noopLogger) Log(LogEvent) {}

func loggerOrNoop(logger Logger) Logger {
	if logger == nil {
		return noopLogger{}
	}
	return logger
}
