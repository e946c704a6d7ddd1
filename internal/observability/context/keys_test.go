package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithCorrelationID(ctx, "01HX")
	ctx = WithTenantID(ctx, "tenant-1")
	ctx = WithActor(ctx, "system", "scheduler")

	assert.Equal(t, "01HX", CorrelationIDFromContext(ctx))
	assert.Equal(t, "tenant-1", TenantIDFromContext(ctx))
	actorType, actorID := ActorFromContext(ctx)
	assert.Equal(t, "system", actorType)
	assert.Equal(t, "scheduler", actorID)
}

func TestEmptyValuesAreIgnored(t *testing.T) {
	ctx := WithTenantID(context.Background(), "")
	assert.Empty(t, TenantIDFromContext(ctx))
}
