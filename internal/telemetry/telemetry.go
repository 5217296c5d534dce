package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/CodeMonkeyCybersecurity/x9/internal/config"
)

// Telemetry records run metrics. The zero-cost implementation is returned
// when telemetry is disabled.
type Telemetry interface {
	RecordUnit(mode string, candidates int, duration time.Duration, success bool)
	RecordDispatch(method string, statusCode int, success bool)
	Close() error
}

type telemetry struct {
	tracer         trace.Tracer
	meter          metric.Meter
	tracerProvider *sdktrace.TracerProvider

	unitCounter      metric.Int64Counter
	unitDuration     metric.Float64Histogram
	candidateCounter metric.Int64Counter
	dispatchCounter  metric.Int64Counter
}

func New(ctx context.Context, cfg config.TelemetryConfig, version string) (Telemetry, error) {
	if !cfg.Enabled {
		return Noop(), nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter

	switch cfg.ExporterType {
	case "otlp":
		client := otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithInsecure(),
		)
		exp, err := otlptrace.New(ctx, client)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		exporter = exp
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.ExporterType)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	meter := otel.Meter(cfg.ServiceName)

	unitCounter, err := meter.Int64Counter("x9.units.total",
		metric.WithDescription("Total number of (url, payload) units processed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	unitDuration, err := meter.Float64Histogram("x9.unit.duration",
		metric.WithDescription("Unit generation time in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	candidateCounter, err := meter.Int64Counter("x9.candidates.total",
		metric.WithDescription("Total number of generated candidate URLs"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	dispatchCounter, err := meter.Int64Counter("x9.dispatch.requests",
		metric.WithDescription("HTTP requests sent for candidate URLs"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &telemetry{
		tracer:           tp.Tracer(cfg.ServiceName),
		meter:            meter,
		tracerProvider:   tp,
		unitCounter:      unitCounter,
		unitDuration:     unitDuration,
		candidateCounter: candidateCounter,
		dispatchCounter:  dispatchCounter,
	}, nil
}

func (t *telemetry) RecordUnit(mode string, candidates int, duration time.Duration, success bool) {
	ctx := context.Background()

	attrs := []attribute.KeyValue{
		attribute.String("generator.mode", mode),
		attribute.Bool("unit.success", success),
	}

	t.unitCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	t.unitDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	if candidates > 0 {
		t.candidateCounter.Add(ctx, int64(candidates), metric.WithAttributes(attribute.String("generator.mode", mode)))
	}
}

func (t *telemetry) RecordDispatch(method string, statusCode int, success bool) {
	t.dispatchCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.Int("http.status_code", statusCode),
		attribute.Bool("dispatch.success", success),
	))
}

func (t *telemetry) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.tracerProvider.Shutdown(ctx)
}

// Noop returns a Telemetry that records nothing.
func Noop() Telemetry { return &noopTelemetry{} }

type noopTelemetry struct{}

func (n *noopTelemetry) RecordUnit(mode string, candidates int, duration time.Duration, success bool) {}
func (n *noopTelemetry) RecordDispatch(method string, statusCode int, success bool)                 {}
func (n *noopTelemetry) Close() error                                                              { return nil }
