package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// process-wide default logger
var root atomic.Pointer[Logger]

// Logger wraps zap.SugaredLogger so every package logs through the same
// interface, with both structured (w-suffixed) and printf-style methods.
type Logger struct {
	*zap.SugaredLogger
}

// NewLogger builds a logger for the given level ("debug", "info", "warn",
// "error"). Development mode switches to the console encoder with colored
// levels and stack traces on warnings.
func NewLogger(level string, development bool) (*Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	zl, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{SugaredLogger: zl.Sugar()}, nil
}

// NewNopLogger returns a logger that discards everything. Used in tests.
func NewNopLogger() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// WithComponent returns a child logger tagged with a component name field.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{SugaredLogger: l.With("component", component)}
}

// Close flushes buffered log entries.
func (l *Logger) Close() error {
	return l.Sync()
}

// GetDefaultLogger returns the shared process logger, creating a debug-level
// development logger on first use.
func GetDefaultLogger() *Logger {
	if l := root.Load(); l != nil {
		return l
	}
	l, err := NewLogger("debug", true)
	if err != nil {
		panic(err)
	}
	root.Store(l)
	return root.Load()
}

// SetDefaultLogger replaces the shared process logger.
func SetDefaultLogger(l *Logger) {
	root.Store(l)
}
