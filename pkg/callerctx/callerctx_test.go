package callerctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithAndGetCaller(t *testing.T) {
	ctx := context.Background()
	_, ok := GetCaller(ctx)
	require.False(t, ok)

	ctx = WithCaller(ctx, Caller{CallerID: "caller-1", CustomerID: "cust-1", PlanID: "starter"})
	c, ok := GetCaller(ctx)
	require.True(t, ok)
	require.Equal(t, "caller-1", c.CallerID)
	require.Equal(t, "cust-1", c.CustomerID)
	require.Equal(t, "starter", c.PlanID)
}

func TestWithAndGetCorrelationID(t *testing.T) {
	ctx := context.Background()
	require.Equal(t, "", GetCorrelationID(ctx))

	ctx = WithCorrelationID(ctx, "corr-1")
	require.Equal(t, "corr-1", GetCorrelationID(ctx))
}
