package ctxlogger

import (
	"context"
	"testing"

	"github.com/smallbiznis/tenantguard/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := correlation.ContextWithCorrelationID(context.Background(), "req-1")
	ctx = With(ctx, zap.String("project_id", "1"), zap.String("phase", "caps"))
	ctx = With(ctx, zap.String("phase", "spike"))

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	ctx = trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	WithContext(ctx, base).Info("evaluated")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["correlation_id"])
	assert.Equal(t, "1", fields["project_id"])
	assert.Equal(t, "spike", fields["phase"])
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", fields["trace_id"])
}

func TestWithContextWithoutMetadata(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	WithContext(context.Background(), zap.New(core)).Info("plain")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.NotContains(t, fields, "trace_id")
	assert.NotContains(t, fields, "correlation_id")
	assert.Equal(t, context.Background(), With(context.Background()))
}
