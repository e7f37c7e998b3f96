// Package correlation propagates the x-correlation-id token through contexts
// so logs, outbound calls and events belonging to one request can be linked.
package correlation

import "context"

// Header is the HTTP header carrying the correlation id across services.
const Header = "x-correlation-id"

type contextKey struct{}

// With returns a context carrying the correlation id.
func With(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, id)
}

// From extracts the correlation id from ctx, or "" when absent.
func From(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}
