package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records scheduler metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records one processor invocation.
	RecordNodeExecution(ctx context.Context, nodeType string, duration time.Duration, err error)

	// RecordPass records a completed Executing phase.
	RecordPass(ctx context.Context, treeID string, executed int, duration time.Duration)

	// RecordDeferred records a pass held back by the freeze gate.
	RecordDeferred(ctx context.Context, treeID string)

	// RecordUnresolved records how many nodes a cycle excluded from a pass.
	RecordUnresolved(ctx context.Context, treeID string, count int)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeErrors     metric.Int64Counter
	passes         metric.Int64Counter
	passLatency    metric.Float64Histogram
	passSize       metric.Int64Histogram
	deferred       metric.Int64Counter
	unresolved     metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics lazily initializes the shared instruments.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates instruments on the global meter provider.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("nodeflow")
	m := &otelMetrics{}
	var err error

	if m.nodeExecutions, err = meter.Int64Counter("nodeflow.node.executions",
		metric.WithDescription("Number of processor invocations"),
	); err != nil {
		return nil, err
	}
	if m.nodeLatency, err = meter.Float64Histogram("nodeflow.node.latency_ms",
		metric.WithDescription("Processor latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.nodeErrors, err = meter.Int64Counter("nodeflow.node.errors",
		metric.WithDescription("Number of processor failures"),
	); err != nil {
		return nil, err
	}
	if m.passes, err = meter.Int64Counter("nodeflow.pass.count",
		metric.WithDescription("Number of executing phases"),
	); err != nil {
		return nil, err
	}
	if m.passLatency, err = meter.Float64Histogram("nodeflow.pass.latency_ms",
		metric.WithDescription("Executing phase latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.passSize, err = meter.Int64Histogram("nodeflow.pass.executed_nodes",
		metric.WithDescription("Nodes executed per pass"),
	); err != nil {
		return nil, err
	}
	if m.deferred, err = meter.Int64Counter("nodeflow.pass.deferred",
		metric.WithDescription("Passes held back by the freeze gate"),
	); err != nil {
		return nil, err
	}
	if m.unresolved, err = meter.Int64Histogram("nodeflow.pass.unresolved_nodes",
		metric.WithDescription("Nodes excluded from a pass by cycles"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder backed by OpenTelemetry.
// If instrument creation fails, returns a no-op recorder.
//
// Configure the global provider first:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordNodeExecution records a processor invocation.
func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeType string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("node_type", nodeType))

	m.nodeExecutions.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.nodeErrors.Add(ctx, 1, attrs)
	}
}

// RecordPass records a completed pass.
func (m *otelMetrics) RecordPass(ctx context.Context, treeID string, executed int, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("tree_id", treeID))

	m.passes.Add(ctx, 1, attrs)
	m.passLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	m.passSize.Record(ctx, int64(executed), attrs)
}

// RecordDeferred records a deferred pass.
func (m *otelMetrics) RecordDeferred(ctx context.Context, treeID string) {
	m.deferred.Add(ctx, 1, metric.WithAttributes(attribute.String("tree_id", treeID)))
}

// RecordUnresolved records the unresolved node count.
func (m *otelMetrics) RecordUnresolved(ctx context.Context, treeID string, count int) {
	m.unresolved.Record(ctx, int64(count), metric.WithAttributes(attribute.String("tree_id", treeID)))
}
