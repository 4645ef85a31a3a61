package nodeflow

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// The global providers can only be delegated to once per process, so this is
// the only test in the package that enables metrics or tracing.
func TestEngine_Telemetry(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	tree := newTestTree(t, &recorder{}, WithTracing(true), WithMetrics(true))
	build(t, tree, [][2]string{{"A", "source"}, {"B", "sum"}}, [][3]string{{"A", "B", "a"}})
	ctx := context.Background()
	exporter.Reset()

	require.NoError(t, tree.SetParameter(ctx, "B", "fail", true))
	tree.Freeze()
	require.NoError(t, tree.SetParameter(ctx, "A", "value", 2.0))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	var pass, node tracetest.SpanStub
	for _, s := range spans {
		switch {
		case s.Name == "nodeflow.pass":
			pass = s
		case strings.HasPrefix(s.Name, "nodeflow.node."):
			node = s
		}
	}
	assert.Equal(t, "nodeflow.node.B", node.Name)
	assert.Equal(t, pass.SpanContext.SpanID(), node.Parent.SpanID())
	assert.Equal(t, "Error", node.Status.Code.String())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(4), sums["nodeflow.node.executions"])
	assert.Equal(t, int64(1), sums["nodeflow.node.errors"])
	assert.Equal(t, int64(4), sums["nodeflow.pass.count"])
	assert.Equal(t, int64(1), sums["nodeflow.pass.deferred"])
}
