package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tenantguard/internal/auditcontext"
	"github.com/smallbiznis/tenantguard/pkg/log/ctxlogger"
	"github.com/smallbiznis/tenantguard/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorType = "X-Actor-Type"
	HeaderRequestID = "X-Request-Id"

	defaultActorType = "user"
)

// RequestLogger assigns a correlation id to the request and logs one line per request.
func RequestLogger(base *zap.Logger, classify func(err error) (string, string)) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := ensureRequestID(c)

		ctx := correlation.ContextWithCorrelationID(c.Request.Context(), requestID)
		ctx = auditcontext.WithRequestID(ctx, requestID)
		ctx = auditcontext.WithIPAddress(ctx, c.ClientIP())
		ctx = auditcontext.WithUserAgent(ctx, c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		if actor := auditcontext.PerformedBy(c.Request.Context()); actor != "" {
			fields = append(fields, zap.String("performed_by", actor))
		}

		var errorType string
		if lastErr := c.Errors.Last(); lastErr != nil && classify != nil {
			var errorCode string
			errorType, errorCode = classify(lastErr.Err)
			fields = append(fields,
				zap.String("error_type", errorType),
				zap.String("error_code", errorCode),
			)
		}

		logRequest(ctxlogger.WithContext(c.Request.Context(), base), route, status, errorType, fields)
	}
}

func ensureRequestID(c *gin.Context) string {
	requestID := correlation.Sanitize(c.GetHeader(HeaderRequestID))
	if requestID == "" {
		requestID = correlation.Sanitize(c.GetHeader(correlation.HeaderName))
	}
	if requestID == "" {
		requestID = correlation.NewID()
	}
	c.Header(HeaderRequestID, requestID)
	return requestID
}

func logRequest(log *zap.Logger, route string, status int, errorType string, fields []zap.Field) {
	level := zap.InfoLevel
	switch {
	case status >= http.StatusInternalServerError:
		level = zap.ErrorLevel
	case route == "/v1/usage" && errorType == "validation_error":
		level = zap.DebugLevel
	case route == "/metrics" || route == "/health":
		level = zap.DebugLevel
	}
	log.Log(level, "http_request", fields...)
}

// Tracing opens a server span per request, continuing any propagated trace.
func Tracing() gin.HandlerFunc {
	tracer := otel.Tracer("tenantguard/http")
	propagator := propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	return func(c *gin.Context) {
		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := correlation.ExtractCorrelationID(ctx); requestID != "" {
			span.SetAttributes(attribute.String("request_id", requestID))
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		span.SetName("HTTP " + c.Request.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", c.Writer.Status()),
		)
		if c.Writer.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, "request error")
		}
	}
}

// Identity copies the caller identity asserted by the upstream gateway into
// the audit context. It does not authenticate.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := strings.TrimSpace(c.GetHeader(HeaderActorID))
		if actorID != "" {
			actorType := strings.TrimSpace(c.GetHeader(HeaderActorType))
			if actorType == "" {
				actorType = defaultActorType
			}
			ctx := auditcontext.WithActor(c.Request.Context(), actorType, actorID)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// RequireActor rejects mutating calls that carry no caller identity.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, actorID := auditcontext.ActorFromContext(c.Request.Context()); actorID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}
