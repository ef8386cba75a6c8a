// Package tracing wires the OpenTelemetry SDK: the global tracer and meter
// providers with optional OTLP export.
package tracing

import (
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability.tracing",
	fx.Provide(
		ConfigFrom,
		NewProvider,
		NewMeterProvider,
	),
	fx.Invoke(ensureProviders),
)

func ensureProviders(_ *sdktrace.TracerProvider, _ *sdkmetric.MeterProvider) {}
