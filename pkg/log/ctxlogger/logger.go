// Package ctxlogger attaches request-scoped fields to zap loggers.
package ctxlogger

import (
	"context"
	"sync/atomic"

	"github.com/smallbiznis/tenantguard/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type fieldsKey struct{}

var serviceName atomic.Pointer[string]

func SetServiceName(name string) {
	serviceName.Store(&name)
}

// With returns a context carrying fields in addition to any already present.
// Later fields with the same key win when the logger is built.
func With(ctx context.Context, fields ...zap.Field) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	prev := fieldsFrom(ctx)
	merged := make([]zap.Field, 0, len(prev)+len(fields))
	merged = append(merged, prev...)
	merged = append(merged, fields...)
	return context.WithValue(ctx, fieldsKey{}, merged)
}

// FromContext decorates the global logger. Used where no logger is injected.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext decorates base with correlation, trace and carried fields.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil {
		return base
	}

	carried := fieldsFrom(ctx)
	fields := make([]zap.Field, 0, 4+len(carried))
	if cid := correlation.ExtractCorrelationID(ctx); cid != "" {
		fields = append(fields, zap.String("correlation_id", cid))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if name := serviceName.Load(); name != nil && *name != "" {
		fields = append(fields, zap.String("service_name", *name))
	}
	fields = append(fields, dedupe(carried)...)

	return base.With(fields...)
}

func fieldsFrom(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(fieldsKey{}).([]zap.Field)
	return fields
}

func dedupe(fields []zap.Field) []zap.Field {
	if len(fields) < 2 {
		return fields
	}
	last := make(map[string]int, len(fields))
	for i, f := range fields {
		last[f.Key] = i
	}
	out := make([]zap.Field, 0, len(last))
	for i, f := range fields {
		if last[f.Key] == i {
			out = append(out, f)
		}
	}
	return out
}
