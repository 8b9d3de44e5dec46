package types

import (
	"time"
)

// TokenBundle es el resultado normalizado de un intercambio OAuth (code o refresh).
type TokenBundle struct {
	AccessToken string
	// RefreshToken vacío significa que el proveedor no rotó; el llamador conserva el anterior.
	RefreshToken string
	TokenType    string
	Scope        string
	// ExpiresIn en segundos. 0 = el proveedor no informó expiración.
	ExpiresIn int64
}

// ExpiresAt calcula la expiración absoluta relativa a now, o nil si no hay TTL.
func (b TokenBundle) ExpiresAt(now time.Time) *time.Time {
	if b.ExpiresIn <= 0 {
		return nil
	}
	t := now.Add(time.Duration(b.ExpiresIn) * time.Second).UTC()
	return &t
}

// NormalizedTokenType devuelve "Bearer" si el proveedor no informó tipo.
func (b TokenBundle) NormalizedTokenType() string {
	if b.TokenType == "" {
		return "Bearer"
	}
	return b.TokenType
}

// Preview devuelve una versión truncada segura para mostrar o loguear ("gho_ab…9f").
// Nunca expone más de 8 caracteres del secreto.
func Preview(token string) string {
	switch n := len(token); {
	case n == 0:
		return ""
	case n <= 8:
		return token[:1] + "…"
	default:
		return token[:6] + "…" + token[n-2:]
	}
}
