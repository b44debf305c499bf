// Package observability bootstraps OpenTelemetry tracing with a pluggable
// exporter. Metrics are Prometheus-native and live in pkg/metrics.
package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config configures the telemetry stack.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// TraceExporter is the span destination. Nil disables tracing.
	TraceExporter sdktrace.SpanExporter

	// TraceSampleRate is the sampled fraction, 0.0 to 1.0.
	TraceSampleRate float64

	Logger *slog.Logger
}

// Telemetry owns the tracer provider and its shutdown.
type Telemetry struct {
	TracerProvider trace.TracerProvider
	Logger         *slog.Logger

	shutdown func(context.Context) error
}

// Init initializes telemetry with graceful degradation: with no exporter
// configured, every tracer is a no-op.
func Init(ctx context.Context, cfg Config) (*Telemetry, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	tel := &Telemetry{Logger: cfg.Logger}

	if cfg.TraceExporter == nil {
		tel.TracerProvider = noop.NewTracerProvider()
		cfg.Logger.Info("tracing disabled (no exporter configured)")
		return tel, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.TraceSampleRate <= 0:
		sampler = sdktrace.NeverSample()
	case cfg.TraceSampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.TraceSampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(cfg.TraceExporter),
		sdktrace.WithSampler(sampler),
	)
	tel.TracerProvider = tp
	tel.shutdown = tp.Shutdown

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	cfg.Logger.Info("tracing initialized", "service", cfg.ServiceName)
	return tel, nil
}

// Tracer returns a tracer for the given name.
func (t *Telemetry) Tracer(name string) trace.Tracer {
	return t.TracerProvider.Tracer(name)
}

// Shutdown flushes and stops the telemetry stack.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.shutdown != nil {
		t.Logger.Info("shutting down observability")
		return t.shutdown(ctx)
	}
	return nil
}
