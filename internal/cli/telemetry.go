package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const serviceName = "nodeflow"

// telemetry owns the OpenTelemetry providers installed for one command.
type telemetry struct {
	traces  *sdktrace.TracerProvider
	metrics *sdkmetric.MeterProvider
	reader  *sdkmetric.ManualReader
}

// setupTelemetry installs global providers according to s. Trace export
// goes to traceOut for --trace, or to an OTLP collector for
// --otlp-endpoint.
func setupTelemetry(ctx context.Context, s settings, traceOut io.Writer) (*telemetry, error) {
	t := &telemetry{}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	var exporter sdktrace.SpanExporter
	var err error
	switch {
	case s.OTLPEndpoint != "":
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(s.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
	case s.Trace:
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(traceOut), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
	}
	if exporter != nil {
		t.traces = sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(exporter),
		)
		otel.SetTracerProvider(t.traces)
	}

	if s.Metrics {
		t.reader = sdkmetric.NewManualReader()
		t.metrics = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(t.reader),
		)
		otel.SetMeterProvider(t.metrics)
	}
	return t, nil
}

func (t *telemetry) tracing() bool { return t.traces != nil }

// writeMetrics prints one line per counter and histogram, sorted by name.
func (t *telemetry) writeMetrics(ctx context.Context, w io.Writer) error {
	if t.reader == nil {
		return nil
	}
	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("collect metrics: %w", err)
	}

	var lines []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				var total int64
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
				lines = append(lines, fmt.Sprintf("%s %d", m.Name, total))
			case metricdata.Histogram[float64]:
				lines = append(lines, histogramLine(m.Name, data.DataPoints))
			case metricdata.Histogram[int64]:
				lines = append(lines, histogramLine(m.Name, data.DataPoints))
			}
		}
	}
	slices.Sort(lines)
	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

func histogramLine[N int64 | float64](name string, points []metricdata.HistogramDataPoint[N]) string {
	var count uint64
	var sum N
	for _, dp := range points {
		count += dp.Count
		sum += dp.Sum
	}
	return fmt.Sprintf("%s count=%d sum=%v", name, count, sum)
}

// shutdown flushes and stops the providers.
func (t *telemetry) shutdown(ctx context.Context) error {
	var errs []error
	if t.traces != nil {
		errs = append(errs, t.traces.Shutdown(ctx))
	}
	if t.metrics != nil {
		errs = append(errs, t.metrics.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
