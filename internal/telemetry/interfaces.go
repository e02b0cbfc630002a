package telemetry

import (
	"log"

	"serpent-arena/server/internal/ai"
)

// Metrics is the capability the simulation publishes health numbers
// through, so it never depends on the full counter set.
type Metrics interface {
	SetSnakesAlive(n int)
	StoreAIMetrics(m ai.Metrics)
}

// NopMetrics discards every update.
func NopMetrics() Metrics {
	return nopMetrics{}
}

type nopMetrics struct{}

func (nopMetrics) SetSnakesAlive(int)        {}
func (nopMetrics) StoreAIMetrics(ai.Metrics) {}

// Logger exposes the logging capability server components depend on.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts functions into the Logger interface.
type LoggerFunc func(format string, args ...any)

// Printf implements Logger for LoggerFunc.
func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogger adapts a standard library logger to the Logger interface.
func WrapLogger(logger *log.Logger) Logger {
	return &loggerAdapter{logger: logger}
}

type loggerAdapter struct {
	logger *log.Logger
}

func (l *loggerAdapter) Printf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Printf(format, args...)
}

// StandardLogger returns the wrapped standard library logger, or nil when
// the adapter carries none.
func (l *loggerAdapter) StandardLogger() *log.Logger {
	if l == nil {
		return nil
	}
	return l.logger
}
