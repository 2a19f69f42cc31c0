// Package identity carries the acting user through request contexts. The
// aggregation engine only reads identity; issuing and validating credentials
// belongs to the upstream API.
package identity

import "context"

// Principal identifies the user whose calendar is being aggregated.
type Principal struct {
	UserID         string
	OrganizationID string
}

type contextKey struct{}

// ContextWithPrincipal returns a derived context containing the acting principal.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, principal)
}

// PrincipalFromContext extracts the acting principal from context if available.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(contextKey{}).(Principal)
	return principal, ok
}
