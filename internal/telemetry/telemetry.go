package telemetry

import (
	"log"

	"go.uber.org/zap"

	"blockroom/logging"
)

// Counter names published on the diagnostics endpoint.
const (
	MetricRoomsActive             = "rooms_active"
	MetricPlayersActive           = "players_active"
	MetricBroadcastsTotal         = "broadcasts_total"
	MetricIntentsRejectedTotal    = "intents_rejected_total"
	MetricSessionsActive          = "sessions_active"
	MetricSlowConsumerDisconnects = "slow_consumer_disconnects_total"
)

// Logger is the process logger used outside the structured event stream.
type Logger interface {
	Printf(format string, args ...any)
}

type LoggerFunc func(format string, args ...any)

func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// NopLogger discards everything.
func NopLogger() Logger {
	return LoggerFunc(func(string, ...any) {})
}

// WrapLogger adapts a standard library logger.
func WrapLogger(logger *log.Logger) Logger {
	if logger == nil {
		return NopLogger()
	}
	return LoggerFunc(logger.Printf)
}

// WrapSugared adapts a zap sugared logger at info level.
func WrapSugared(logger *zap.SugaredLogger) Logger {
	if logger == nil {
		return NopLogger()
	}
	return LoggerFunc(logger.Infof)
}

type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

// WrapMetrics adapts the logging counter registry. A nil registry yields
// an adapter that drops updates.
func WrapMetrics(metrics *logging.Metrics) Metrics {
	return &metricsAdapter{metrics: metrics}
}

type metricsAdapter struct {
	metrics *logging.Metrics
}

func (m *metricsAdapter) Add(key string, delta uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryAdd(key, delta)
}

func (m *metricsAdapter) Store(key string, value uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryStore(key, value)
}
