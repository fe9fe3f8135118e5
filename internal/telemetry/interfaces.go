package telemetry

import (
	"fmt"
	"log"

	"arena/server/logging"
)

// Logger is the printf-style logger handed to server components.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts a function into a Logger.
type LoggerFunc func(format string, args ...any)

func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogger adapts a standard library logger. A nil logger discards output.
func WrapLogger(logger *log.Logger) Logger {
	if logger == nil {
		return Discard()
	}
	return LoggerFunc(logger.Printf)
}

// Discard returns a logger that drops everything.
func Discard() Logger {
	return LoggerFunc(func(string, ...any) {})
}

// Prefixed tags every line written through base with prefix.
func Prefixed(base Logger, prefix string) Logger {
	if base == nil {
		return Discard()
	}
	return LoggerFunc(func(format string, args ...any) {
		base.Printf("%s %s", prefix, fmt.Sprintf(format, args...))
	})
}

// Metrics receives counter and gauge updates.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

// WrapMetrics reports through the router's metric set. A nil set is ignored.
func WrapMetrics(metrics *logging.Metrics) Metrics {
	return metricsAdapter{metrics: metrics}
}

type metricsAdapter struct {
	metrics *logging.Metrics
}

func (m metricsAdapter) Add(key string, delta uint64) {
	if m.metrics == nil {
		return
	}
	m.metrics.TelemetryAdd(key, delta)
}

func (m metricsAdapter) Store(key string, value uint64) {
	if m.metrics == nil {
		return
	}
	m.metrics.TelemetryStore(key, value)
}
