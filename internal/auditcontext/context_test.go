package auditcontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActorRoundTrip(t *testing.T) {
	ctx := WithActor(context.Background(), "user", " ops-42 ")
	actorType, actorID := ActorFromContext(ctx)
	assert.Equal(t, "user", actorType)
	assert.Equal(t, "ops-42", actorID)
	assert.Equal(t, "ops-42", PerformedBy(ctx))
}

func TestPerformedByFallsBackToActorType(t *testing.T) {
	ctx := WithActor(context.Background(), "system", "")
	assert.Equal(t, "system", PerformedBy(ctx))
	assert.Equal(t, "", PerformedBy(context.Background()))
}

func TestEmptyValuesAreIgnored(t *testing.T) {
	ctx := WithIPAddress(context.Background(), "  ")
	assert.Equal(t, "", IPAddressFromContext(ctx))

	ctx = WithIPAddress(ctx, "10.0.0.1")
	ctx = WithUserAgent(ctx, "curl/8")
	ctx = WithRequestID(ctx, "req-1")
	assert.Equal(t, "10.0.0.1", IPAddressFromContext(ctx))
	assert.Equal(t, "curl/8", UserAgentFromContext(ctx))
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
}
