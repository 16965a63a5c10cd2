package middleware

import (
	"context"

	"evalhub/internal/domain/auth"
	"evalhub/internal/requestctx"
)

type ctxKey string

const ctxKeyUser ctxKey = "user"

func WithUser(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, ctxKeyUser, id)
}

// GetUser returns the authenticated caller. ok is false for anonymous requests.
func GetUser(ctx context.Context) (auth.Identity, bool) {
	user, ok := ctx.Value(ctxKeyUser).(auth.Identity)
	if !ok || !user.Authenticated() {
		return auth.Identity{}, false
	}
	return user, true
}

func GetRequestID(ctx context.Context) string {
	return requestctx.GetRequestID(ctx)
}
