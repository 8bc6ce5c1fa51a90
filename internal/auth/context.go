package auth

import (
	"context"

	"github.com/google/uuid"
)

type claimsKey struct{}

func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if c, ok := ClaimsFromContext(ctx); ok {
		return c.UserID, true
	}
	return uuid.UUID{}, false
}

// ActorFromContext is the audit identity recorded in entry history for
// operator-initiated mutations.
func ActorFromContext(ctx context.Context) string {
	if c, ok := ClaimsFromContext(ctx); ok {
		return c.Email
	}
	return "anonymous"
}
