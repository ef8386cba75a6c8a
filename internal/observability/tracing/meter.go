package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
)

const defaultMetricInterval = 30 * time.Second

// NewMeterProvider installs the global meter provider. The database
// instrumentation reports connection pool and query metrics through it.
// Prometheus remains the scrape surface for engine metrics.
func NewMeterProvider(lc fx.Lifecycle, cfg Config) (*sdkmetric.MeterProvider, error) {
	mp, err := newMeterProvider(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(mp)

	lc.Append(fx.StopHook(func(ctx context.Context) error {
		return mp.Shutdown(ctx)
	}))
	return mp, nil
}

func newMeterProvider(ctx context.Context, cfg Config, extra ...sdkmetric.Option) (*sdkmetric.MeterProvider, error) {
	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if cfg.exporting() {
		exporter, err := newMetricExporter(ctx, cfg)
		if err != nil {
			return nil, err
		}
		interval := cfg.MetricInterval
		if interval <= 0 {
			interval = defaultMetricInterval
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))))
	}
	opts = append(opts, extra...)
	return sdkmetric.NewMeterProvider(opts...), nil
}

func newMetricExporter(ctx context.Context, cfg Config) (sdkmetric.Exporter, error) {
	switch cfg.ExporterProtocol {
	case ProtocolGRPC:
		var opts []otlpmetricgrpc.Option
		if cfg.endpointIsURL() {
			opts = append(opts, otlpmetricgrpc.WithEndpointURL(cfg.ExporterEndpoint))
		} else {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.ExporterEndpoint), otlpmetricgrpc.WithInsecure())
		}
		exporter, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otlp grpc metric exporter: %w", err)
		}
		return exporter, nil
	case ProtocolHTTP, "http/protobuf":
		var opts []otlpmetrichttp.Option
		if cfg.endpointIsURL() {
			opts = append(opts, otlpmetrichttp.WithEndpointURL(cfg.ExporterEndpoint))
		} else {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.ExporterEndpoint), otlpmetrichttp.WithInsecure())
		}
		exporter, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otlp http metric exporter: %w", err)
		}
		return exporter, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, cfg.ExporterProtocol)
	}
}
