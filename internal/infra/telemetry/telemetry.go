// Package telemetry wires the OTel SDK and exposes the metric instrument
// registry C10/C11/C12 record against.
//
// Grounded on rezkam-mono's pkg/observability/otel.go (resource.Merge with
// resource.Default, WithBatcher/PeriodicReader provider construction,
// global provider registration so otelhttp instrumentation picks it up
// without being threaded through explicitly), narrowed from that file's
// OTLP-HTTP-plus-log-bridge setup to the gRPC trace/metric exporters named
// in SPEC_FULL.md §1 — this service's structured logging already has its
// own ground-up package (internal/infra/logging) rather than an OTel log
// bridge.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const meterName = "docgen"

// Providers bundles the SDK providers so main can defer their shutdown.
type Providers struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
}

// Init builds the meter and tracer providers and registers them as the
// process globals so go.opentelemetry.io/contrib instrumentation (the
// outbound REST client's otelhttp.NewTransport) picks them up without
// being wired through explicitly. When endpoint is empty, the SDK's own
// no-op providers are left in place and no dial is attempted — OTLP
// export stays entirely optional per §1.
func Init(ctx context.Context, endpoint, serviceName string) (*Providers, error) {
	if endpoint == "" {
		return &Providers{}, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter, sdktrace.WithBatchTimeout(5*time.Second)),
	)
	otel.SetTracerProvider(tracerProvider)

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
		otlpmetricgrpc.WithTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}
	meterProvider := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(metricExporter, metric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(meterProvider)

	return &Providers{meterProvider: meterProvider, tracerProvider: tracerProvider}, nil
}

// Shutdown flushes and releases the providers. Safe to call on a
// zero-value Providers (the endpoint-unset case).
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("telemetry: shutdown tracer provider: %w", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("telemetry: shutdown meter provider: %w", err)
		}
	}
	return nil
}
