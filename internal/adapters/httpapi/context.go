package httpapi

import (
	"context"

	"github.com/wingz-dispatch/ride-records-api/internal/domain"
)

// Principal is the authenticated caller. Role is read from the directory on every request.
type Principal struct {
	UserID domain.UserID
	Role   domain.Role
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.UserID != ""
}
