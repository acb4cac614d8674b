package middleware

import (
	"context"

	"github.com/angelmondragon/farmgate-checkout/internal/identity"
)

type contextKey string

const (
	ctxIdentity  contextKey = "identity"
	ctxClientID  contextKey = "client_id"
	ctxRequestID contextKey = "request_id"
)

// IdentityFromContext returns the caller identity, or a guest when none was attached.
func IdentityFromContext(ctx context.Context) identity.Identity {
	if ctx == nil {
		return identity.Guest()
	}
	if v, ok := ctx.Value(ctxIdentity).(identity.Identity); ok {
		return v
	}
	return identity.Guest()
}

func UserIDFromContext(ctx context.Context) string {
	return IdentityFromContext(ctx).UserID
}

func ClientIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxClientID).(string); ok {
		return v
	}
	return ""
}

// WithIdentity injects the caller identity into the context.
func WithIdentity(ctx context.Context, id identity.Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxIdentity, id)
}

// WithClientID injects the device identifier into the context for downstream handlers.
func WithClientID(ctx context.Context, clientID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxClientID, clientID)
}
