// Package identity verifica los ID tokens que emite el identity provider de la app
// (Firebase Auth en producción) y los reduce a un Identity con el uid estable.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidIdentity cubre token ausente, malformado, firma/issuer/audience inválidos o expirado.
// El detalle queda en la cadena de errores para logs; al cliente solo llega "volvé a iniciar sesión".
var ErrInvalidIdentity = errors.New("invalid identity")

// Identity es el resultado de una verificación exitosa.
type Identity struct {
	UID     string
	Email   string
	Name    string
	Picture string
}

// Verifier verifica un bearer token. Es puro: no escribe nada.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// BearerToken extrae el token de un header "Authorization: Bearer xxx".
func BearerToken(header string) string {
	const prefix = "bearer "
	h := strings.TrimSpace(header)
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// claims son los campos que nos interesan de un ID token de Firebase.
type claims struct {
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Picture  string `json:"picture,omitempty"`
	AuthTime int64  `json:"auth_time,omitempty"`
	jwt.RegisteredClaims
}

func (c claims) identity() Identity {
	return Identity{UID: c.Subject, Email: c.Email, Name: c.Name, Picture: c.Picture}
}
