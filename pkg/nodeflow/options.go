package nodeflow

import (
	"log/slog"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/eventlog"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/observability"
)

// engineConfig holds engine-wide settings shared by every tree.
type engineConfig struct {
	logger         *slog.Logger
	verbose        bool
	metrics        observability.MetricsRecorder
	metricsEnabled bool
	spans          observability.SpanManager
	tracingEnabled bool
	store          eventlog.Store
	sessionID      string
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
}

// Option configures an Engine.
type Option func(*engineConfig)

// WithLogger sets the logger used for pass, node and event logging.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(c *engineConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithVerbose enables the per-event diagnostic lines
// ("EVENT: ... IN: ... INSTANCE: ...") and structural race logging.
func WithVerbose(enabled bool) Option {
	return func(c *engineConfig) {
		c.verbose = enabled
	}
}

// WithMetrics enables OpenTelemetry metrics on the global meter provider.
//
// Example:
//
//	otel.SetMeterProvider(provider)
//	engine := nodeflow.NewEngine(nodeflow.WithMetrics(true))
func WithMetrics(enabled bool) Option {
	return func(c *engineConfig) {
		c.metricsEnabled = enabled
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithTracing enables OpenTelemetry spans per pass and per node on the
// global tracer provider.
func WithTracing(enabled bool) Option {
	return func(c *engineConfig) {
		c.tracingEnabled = enabled
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}

// WithEventStore mirrors the event log into store.
func WithEventStore(store eventlog.Store) Option {
	return func(c *engineConfig) {
		c.store = store
	}
}

// WithSessionID sets the session the event log is filed under.
// If not set, a UUID is generated.
func WithSessionID(id string) Option {
	return func(c *engineConfig) {
		c.sessionID = id
	}
}
