// Package telemetry wires the hub's OpenTelemetry tracer provider: a
// no-op provider when no OTLP endpoint is configured, or a batching
// otlptracehttp exporter pointed at one. Grounded on SPEC_FULL.md's
// ambient tracing requirement (one span per brokered request, one span
// per supervisor lifecycle transition) layered onto the teacher's
// structured-logging-first observability posture.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName is the resource attribute every span from this binary
// carries, regardless of exporter.
const ServiceName = "nexushub"

// Shutdown flushes and stops the tracer provider started by Setup. It is
// safe to call on the no-op provider returned when tracing isn't
// configured.
type Shutdown func(context.Context) error

// Setup installs otel's global tracer provider. An empty endpoint installs
// the package default no-op provider, so span creation elsewhere in the
// hub is always safe to call unconditionally. A non-empty endpoint starts
// a batching OTLP/HTTP exporter against it.
func Setup(ctx context.Context, otlpEndpoint string) (Shutdown, error) {
	if otlpEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(otlpEndpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("creating otlp trace exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceNameKey.String(ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("merging otel resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}

// Tracer returns the named tracer off the currently installed (possibly
// no-op) global provider. component is typically a package name, e.g.
// "router" or "supervisor".
func Tracer(component string) trace.Tracer {
	return otel.Tracer("nexushub/" + component)
}
