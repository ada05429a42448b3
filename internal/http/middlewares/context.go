package middlewares

import (
	"context"

	"github.com/dropDatabas3/persona/internal/identity"
)

type ctxKey string

const (
	ctxPrincipalKey ctxKey = "principal"
	ctxRequestIDKey ctxKey = "request_id"
)

// WithPrincipal inyecta el principal autenticado en el contexto.
func WithPrincipal(ctx context.Context, p identity.Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey, p)
}

// GetPrincipal obtiene el principal del contexto (ok=false si no hay).
func GetPrincipal(ctx context.Context) (identity.Principal, bool) {
	p, ok := ctx.Value(ctxPrincipalKey).(identity.Principal)
	return p, ok && p.ID != ""
}

func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// GetRequestID obtiene el request ID del contexto.
func GetRequestID(ctx context.Context) string {
	if s, ok := ctx.Value(ctxRequestIDKey).(string); ok {
		return s
	}
	return ""
}
