package middlewares

import (
	"net/http"

	"github.com/dropDatabas3/devpulse/internal/http/errors"
	"github.com/dropDatabas3/devpulse/internal/identity"
	"github.com/dropDatabas3/devpulse/internal/observability/logger"
)

// RequireIdentity valida Authorization: Bearer <ID token> y guarda la identidad.
// Un token inválido o ausente siempre es 401, nunca 500.
func RequireIdentity(v identity.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := identity.BearerToken(r.Header.Get("Authorization"))
			if raw == "" {
				errors.WriteError(w, errors.ErrTokenMissing)
				return
			}
			id, err := v.Verify(r.Context(), raw)
			if err != nil {
				logger.From(r.Context()).Debug("identity rejected", logger.Err(err))
				errors.WriteError(w, errors.ErrUnauthorized.WithCause(err))
				return
			}
			ctx := WithIdentity(r.Context(), id)
			ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.UserID(id.UID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalIdentity intenta validar el bearer pero no falla si falta o es inválido.
func OptionalIdentity(v identity.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := identity.BearerToken(r.Header.Get("Authorization"))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			id, err := v.Verify(r.Context(), raw)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := WithIdentity(r.Context(), id)
			ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.UserID(id.UID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
