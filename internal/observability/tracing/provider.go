package tracing

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrUnsupportedProtocol = errors.New("unsupported_otlp_protocol")

// NewProvider installs the global tracer provider and W3C propagators.
// Spans are always recorded locally so log lines carry trace ids; they are
// only exported when an endpoint is configured.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (*sdktrace.TracerProvider, error) {
	tp, err := newTracerProvider(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.exporting() {
		log.Info("otlp trace export enabled",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
			zap.Float64("sampling_ratio", cfg.SamplingRatio),
		)
	} else {
		log.Info("otlp trace export disabled")
	}

	lc.Append(fx.StopHook(func(ctx context.Context) error {
		return tp.Shutdown(ctx)
	}))
	return tp, nil
}

func newTracerProvider(ctx context.Context, cfg Config, extra ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRatio))),
	}
	if cfg.exporting() {
		exporter, err := newTraceExporter(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	opts = append(opts, extra...)
	return sdktrace.NewTracerProvider(opts...), nil
}

func newTraceExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterProtocol {
	case ProtocolGRPC:
		var opts []otlptracegrpc.Option
		if cfg.endpointIsURL() {
			opts = append(opts, otlptracegrpc.WithEndpointURL(cfg.ExporterEndpoint))
		} else {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.ExporterEndpoint), otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otlp grpc trace exporter: %w", err)
		}
		return exporter, nil
	case ProtocolHTTP, "http/protobuf":
		var opts []otlptracehttp.Option
		if cfg.endpointIsURL() {
			opts = append(opts, otlptracehttp.WithEndpointURL(cfg.ExporterEndpoint))
		} else {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.ExporterEndpoint), otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otlp http trace exporter: %w", err)
		}
		return exporter, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, cfg.ExporterProtocol)
	}
}

func newResource(cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{attribute.String("service.name", cfg.ServiceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.ServiceVersion))
	}
	if cfg.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment.name", cfg.Environment))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}
	return res, nil
}
