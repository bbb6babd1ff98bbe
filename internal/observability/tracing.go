// Package observability provides OpenTelemetry integration for distributed tracing.
//
// Traces are exported over OTLP HTTP to a local collector (OpenTelemetry
// Collector, Datadog Agent, Grafana Alloy). The collector handles
// authentication and forwarding, so the application never carries vendor
// credentials.
//
// Tracing is off by default. Set tracing_endpoint (or
// ELOQUENT_TRACING_ENDPOINT) to the collector's OTLP HTTP address, e.g.
// "localhost:4318", to enable it.
package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config for OTLP trace export.
type Config struct {
	// Endpoint is the collector's OTLP HTTP address. Empty disables tracing.
	Endpoint string
	// Environment is the deployment environment (development, staging, production)
	Environment string
	// ServiceName is the service name shown in the tracing backend
	ServiceName string
}

// DefaultServiceName is used when Config.ServiceName is empty.
const DefaultServiceName = "eloquent-chat"

// SetupTracing installs a global tracer provider exporting to the configured
// OTLP collector. With no endpoint configured it installs nothing and the
// global no-op tracer stays in place.
//
// Returns a shutdown function that flushes pending spans. Exporter creation
// failure degrades to disabled tracing rather than failing startup.
func SetupTracing(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	nop := func(context.Context) error { return nil }

	if cfg.Endpoint == "" {
		slog.Debug("tracing disabled, no endpoint configured")
		return nop, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(), // local collector, no TLS
	)
	if err != nil {
		slog.Warn("failed to create trace exporter, tracing disabled", "error", err)
		return nop, nil
	}

	attrs := []attribute.KeyValue{
		attribute.String("service.name", serviceName),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", cfg.Environment))
	}
	res, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes("", attrs...),
	)
	if err != nil {
		slog.Warn("failed to build trace resource, using defaults", "error", err)
		res = sdkresource.Default()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	slog.Debug("tracing enabled",
		"endpoint", cfg.Endpoint,
		"service", serviceName,
		"environment", cfg.Environment,
	)

	return provider.Shutdown, nil
}
