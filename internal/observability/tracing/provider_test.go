package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/tenantguard/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap/zaptest"
)

func TestConfigFromDefaults(t *testing.T) {
	cfg := ConfigFrom(config.Config{Environment: " staging ", Otel: config.OtelConfig{Enabled: true}})

	assert.Equal(t, "tenantguard", cfg.ServiceName)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, ProtocolGRPC, cfg.ExporterProtocol)
	assert.False(t, cfg.exporting(), "no endpoint means nothing is exported")
}

func TestEndpointIsURL(t *testing.T) {
	assert.True(t, Config{ExporterEndpoint: "https://otel.internal:4318"}.endpointIsURL())
	assert.False(t, Config{ExporterEndpoint: "otel-collector:4317"}.endpointIsURL())
}

func TestTracerProviderRecordsWithoutExporter(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp, err := newTracerProvider(context.Background(), Config{
		ServiceName:    "tenantguard",
		ServiceVersion: "1.2.3",
		SamplingRatio:  1,
	}, sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "evaluate")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "evaluate", ended[0].Name())

	name, ok := ended[0].Resource().Set().Value(attribute.Key("service.name"))
	require.True(t, ok)
	assert.Equal(t, "tenantguard", name.AsString())
	version, ok := ended[0].Resource().Set().Value(attribute.Key("service.version"))
	require.True(t, ok)
	assert.Equal(t, "1.2.3", version.AsString())
}

func TestUnsampledSpansStillCarryTraceIDs(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp, err := newTracerProvider(context.Background(), Config{ServiceName: "tenantguard"}, sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "sweep")
	span.End()

	assert.True(t, span.SpanContext().IsValid())
	assert.False(t, span.SpanContext().IsSampled())
	assert.Empty(t, recorder.Ended())
}

func TestSampledParentOverridesRatio(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp, err := newTracerProvider(context.Background(), Config{ServiceName: "tenantguard"}, sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02, 0x03},
		SpanID:     trace.SpanID{0x0a},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), parent)

	_, span := tp.Tracer("test").Start(ctx, "http")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, parent.TraceID(), ended[0].SpanContext().TraceID())
}

func TestUnsupportedProtocolIsRejected(t *testing.T) {
	cfg := Config{
		Enabled:          true,
		ServiceName:      "tenantguard",
		ExporterEndpoint: "otel-collector:4317",
		ExporterProtocol: "kafka",
	}

	_, err := newTracerProvider(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnsupportedProtocol)

	_, err = newMeterProvider(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnsupportedProtocol)
}

func TestExportersBuildForEachProtocol(t *testing.T) {
	cases := []struct {
		name     string
		protocol string
		endpoint string
	}{
		{name: "grpc host port", protocol: ProtocolGRPC, endpoint: "127.0.0.1:4317"},
		{name: "grpc url", protocol: ProtocolGRPC, endpoint: "http://127.0.0.1:4317"},
		{name: "http host port", protocol: ProtocolHTTP, endpoint: "127.0.0.1:4318"},
		{name: "http url", protocol: "http/protobuf", endpoint: "http://127.0.0.1:4318"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{
				Enabled:          true,
				ServiceName:      "tenantguard",
				ExporterEndpoint: tc.endpoint,
				ExporterProtocol: tc.protocol,
				SamplingRatio:    1,
				MetricInterval:   time.Hour,
			}

			tp, err := newTracerProvider(context.Background(), cfg)
			require.NoError(t, err)
			mp, err := newMeterProvider(context.Background(), cfg)
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = tp.Shutdown(ctx)
			_ = mp.Shutdown(ctx)
		})
	}
}

func TestMeterProviderCarriesResource(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp, err := newMeterProvider(context.Background(), Config{
		ServiceName: "tenantguard",
		Environment: "test",
	}, sdkmetric.WithReader(reader))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	counter, err := mp.Meter("test").Int64Counter("evaluations_total", metric.WithDescription("evaluations"))
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	env, ok := rm.Resource.Set().Value(attribute.Key("deployment.environment.name"))
	require.True(t, ok)
	assert.Equal(t, "test", env.AsString())
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)
	assert.Equal(t, "evaluations_total", rm.ScopeMetrics[0].Metrics[0].Name)
}

func TestNewProviderInstallsPropagators(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	tp, err := NewProvider(lc, Config{ServiceName: "tenantguard"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, tp)

	lc.RequireStart()
	assert.ElementsMatch(t, []string{"traceparent", "tracestate", "baggage"}, otel.GetTextMapPropagator().Fields())
	lc.RequireStop()
}
