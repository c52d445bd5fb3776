// Package tracing wires OpenTelemetry spans for the poll loop and the forwarder.
package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

var traceProvider *sdktrace.TracerProvider

// Init installs a global tracer provider exporting to endpoint over OTLP/HTTP.
// An empty endpoint leaves the default no-op provider in place.
func Init(ctx context.Context, serviceName, endpoint string, logger *slog.Logger) error {
	if endpoint == "" {
		logger.Info("Tracing disabled, no OTLP endpoint configured")
		return nil
	}

	opts, err := endpointOptions(endpoint)
	if err != nil {
		return err
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	)

	traceProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(traceProvider)

	logger.Info("OpenTelemetry tracing initialized", "endpoint", endpoint)
	return nil
}

// endpointOptions accepts the OTEL_EXPORTER_OTLP_ENDPOINT URL form
// (http://collector:4318, traces go to /v1/traces below it) or a bare host:port,
// which is dialed without TLS
func endpointOptions(endpoint string) ([]otlptracehttp.Option, error) {
	if !strings.Contains(endpoint, "://") {
		return []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		}, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid OTLP endpoint %q: missing host", endpoint)
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(u.Host),
		otlptracehttp.WithURLPath(path.Join("/", u.Path, "v1/traces")),
	}
	if u.Scheme != "https" {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return opts, nil
}

// Shutdown flushes buffered spans
func Shutdown(ctx context.Context, logger *slog.Logger) {
	if traceProvider == nil {
		return
	}
	if err := traceProvider.Shutdown(ctx); err != nil {
		logger.Warn("Error shutting down tracer", "error", err)
		return
	}
	logger.Info("Tracer shutdown complete")
}
