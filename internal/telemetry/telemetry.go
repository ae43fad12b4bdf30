// Package telemetry wires OpenTelemetry tracing and metrics. Exporters are
// only installed when an OTLP endpoint is configured; otherwise the global
// no-op providers stay in place.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName scopes every tracer and meter created here.
const InstrumentationName = "github.com/dwsmith1983/dispatchwait"

// EndpointEnv is the standard OTLP endpoint variable.
const EndpointEnv = "OTEL_EXPORTER_OTLP_ENDPOINT"

// ShutdownFunc flushes and stops the installed providers.
type ShutdownFunc func(context.Context) error

// Setup installs OTLP/gRPC trace and metric exporters when EndpointEnv is
// set. The returned shutdown function is always safe to call.
func Setup(ctx context.Context, service string, logger *slog.Logger) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }
	if logger == nil {
		logger = slog.Default()
	}
	if os.Getenv(EndpointEnv) == "" {
		return noop, nil
	}

	res := resource.NewSchemaless(attribute.String("service.name", service))

	traceExp, err := otlptracegrpc.New(ctx)
	if err != nil {
		return noop, fmt.Errorf("creating trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)

	metricExp, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return noop, fmt.Errorf("creating metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	logger.Debug("telemetry exporters installed", "endpoint", os.Getenv(EndpointEnv))

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// Tracer returns the package tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Flush exports buffered spans and metrics of the installed SDK providers
// without shutting them down. It is a no-op when Setup installed nothing.
func Flush(ctx context.Context) error {
	var errs []error
	if tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); ok {
		errs = append(errs, tp.ForceFlush(ctx))
	}
	if mp, ok := otel.GetMeterProvider().(*sdkmetric.MeterProvider); ok {
		errs = append(errs, mp.ForceFlush(ctx))
	}
	return errors.Join(errs...)
}
