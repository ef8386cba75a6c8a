package auditcontext

import (
	"context"
	"strings"
)

type actorKey struct{}
type ipAddressKey struct{}
type userAgentKey struct{}
type requestIDKey struct{}

type actor struct {
	actorType string
	actorID   string
}

// WithActor records who is performing the mutation carried by ctx.
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	actorType = strings.TrimSpace(actorType)
	if actorType == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actor{actorType: actorType, actorID: strings.TrimSpace(actorID)})
}

// ActorFromContext returns the actor type and id, or empty strings when absent.
func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	a, ok := ctx.Value(actorKey{}).(actor)
	if !ok {
		return "", ""
	}
	return a.actorType, a.actorID
}

// PerformedBy returns the actor id, falling back to the actor type for system actors.
func PerformedBy(ctx context.Context) string {
	actorType, actorID := ActorFromContext(ctx)
	if actorID != "" {
		return actorID
	}
	return actorType
}

func WithIPAddress(ctx context.Context, ip string) context.Context {
	return withString(ctx, ipAddressKey{}, ip)
}

func IPAddressFromContext(ctx context.Context) string {
	return stringFrom(ctx, ipAddressKey{})
}

func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return withString(ctx, userAgentKey{}, userAgent)
}

func UserAgentFromContext(ctx context.Context) string {
	return stringFrom(ctx, userAgentKey{})
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withString(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringFrom(ctx, requestIDKey{})
}

func withString(ctx context.Context, key any, value string) context.Context {
	value = strings.TrimSpace(value)
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key any) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(key).(string); ok {
		return value
	}
	return ""
}
