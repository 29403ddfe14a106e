package cli

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

const serviceName = "durabletask-cli"

// ConfigureZipkinTracing installs a global tracer provider that sends the replay spans of this
// process to the Zipkin collector at url. The returned function flushes and stops the exporter.
func ConfigureZipkinTracing(url string) (func(context.Context) error, error) {
	exp, err := zipkin.New(url)
	if err != nil {
		return nil, fmt.Errorf("failed to create zipkin exporter for %s: %w", url, err)
	}

	tp := sdktrace.NewTracerProvider(
		// the CLI exits right after the command, so spans are not batched
		sdktrace.WithSyncer(exp),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
