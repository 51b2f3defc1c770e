package tracer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// instrumentationName names the tracer that creates every span in this module.
const instrumentationName = "github.com/aalemi-dev/kafka-workers"

// TracerClient owns an OpenTelemetry TracerProvider. It is safe for concurrent use.
type TracerClient struct {
	provider   *trace.TracerProvider
	propagator propagation.TextMapPropagator
}

// NewClient builds a TracerProvider from cfg and installs it, together with the
// TraceContext and Baggage propagators, as the global OpenTelemetry defaults.
//
// With cfg.EnableExport the provider batches spans to an OTLP HTTP exporter; an
// exporter that cannot be created is returned as an error.
//
//	t, err := tracer.NewClient(tracer.Config{ServiceName: "billing-workers", AppEnv: "prod", EnableExport: true})
//	if err != nil {
//	    return err
//	}
//	defer t.Shutdown(context.Background())
func NewClient(cfg Config) (*TracerClient, error) {
	var options []trace.TracerProviderOption

	if cfg.EnableExport {
		exporter, err := otlptrace.New(context.Background(), otlptracehttp.NewClient())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OTLP exporter: %w", err)
		}
		options = append(options, trace.WithBatcher(exporter))
	}

	options = append(options, trace.WithResource(resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.DeploymentEnvironment(cfg.AppEnv),
		attribute.String("environment", cfg.AppEnv),
	)))

	tp := trace.NewTracerProvider(options...)
	propagator := propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagator)

	return &TracerClient{provider: tp, propagator: propagator}, nil
}

// Shutdown flushes pending spans and stops the provider.
func (t *TracerClient) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
