// Package callerctx carries per-request identity and correlation data
// through context.Context, the way a Principal gets threaded through a
// request — except the gateway trusts an upstream identity proxy and
// never authenticates callers itself (an explicit non-goal here).
package callerctx

import "context"

// Caller is the identity stamped by the upstream identity proxy.
type Caller struct {
	CallerID   string
	CustomerID string
	PlanID     string
}

type callerKey struct{}
type correlationKey struct{}

// WithCaller returns a derived context carrying c.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// GetCaller returns the caller stamped on ctx, or the zero value and false
// if none was stamped (an unauthenticated request reaching an endpoint that
// requires caller identity).
func GetCaller(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

// WithCorrelationID returns a derived context carrying the request's
// correlation id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// GetCorrelationID returns the correlation id stamped on ctx, or "" if none.
func GetCorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
