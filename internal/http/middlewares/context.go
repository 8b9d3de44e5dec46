package middlewares

import (
	"context"

	"github.com/dropDatabas3/devpulse/internal/identity"
)

type ctxKey int

const (
	ctxRequestID ctxKey = iota
	ctxIdentity
)

func setRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, ctxRequestID, rid)
}

// GetRequestID devuelve el request id o "".
func GetRequestID(ctx context.Context) string {
	s, _ := ctx.Value(ctxRequestID).(string)
	return s
}

// WithIdentity guarda la identidad verificada en el contexto.
func WithIdentity(ctx context.Context, id identity.Identity) context.Context {
	return context.WithValue(ctx, ctxIdentity, id)
}

// GetIdentity devuelve la identidad verificada, si hay.
func GetIdentity(ctx context.Context) (identity.Identity, bool) {
	id, ok := ctx.Value(ctxIdentity).(identity.Identity)
	return id, ok && id.UID != ""
}

// GetUserID devuelve el uid verificado o "".
func GetUserID(ctx context.Context) string {
	id, _ := GetIdentity(ctx)
	return id.UID
}
