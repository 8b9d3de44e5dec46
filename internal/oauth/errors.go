package oauth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dropDatabas3/devpulse/internal/domain/types"
)

var (
	// ErrExchangeFailed: el token endpoint rechazó el code o el refresh token.
	ErrExchangeFailed = errors.New("oauth exchange failed")
	// ErrProviderUnavailable: red, timeout o 5xx. Nunca implica invalidar la conexión.
	ErrProviderUnavailable = errors.New("oauth provider unavailable")
	// ErrNotConfigured: el proveedor no tiene client id/secret.
	ErrNotConfigured = errors.New("oauth provider not configured")
)

// ExchangeError es la respuesta de error del token endpoint.
type ExchangeError struct {
	Provider        types.ProviderKind
	ProviderStatus  int
	ProviderCode    string // error (RFC 6749 §5.2), ej: invalid_grant
	ProviderMessage string // error_description
}

func (e *ExchangeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s token exchange failed", e.Provider)
	if e.ProviderStatus != 0 {
		fmt.Fprintf(&b, " (status %d)", e.ProviderStatus)
	}
	if e.ProviderCode != "" {
		b.WriteString(": " + e.ProviderCode)
	}
	if e.ProviderMessage != "" {
		b.WriteString(": " + e.ProviderMessage)
	}
	return b.String()
}

func (e *ExchangeError) Unwrap() error { return ErrExchangeFailed }

// Authoritative reporta si el proveedor rechazó el grant de forma definitiva.
// Solo en ese caso la conexión se marca needs_reconnect. Cualquier código
// RFC 6749 cuenta (GitHub usa bad_refresh_token con status 200) salvo los
// transitorios; sin código solo 400/401/403.
func (e *ExchangeError) Authoritative() bool {
	if e.ProviderCode != "" {
		return !transientCode(e.ProviderCode)
	}
	switch e.ProviderStatus {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

func transientCode(code string) bool {
	return code == "temporarily_unavailable" || code == "server_error"
}

// transient reporta respuestas del token endpoint que no dicen nada del grant:
// códigos transitorios, 5xx, 408/425/429 o un status sin código fuera de 400/401/403.
func (e *ExchangeError) transient() bool {
	if e.ProviderCode != "" {
		return transientCode(e.ProviderCode)
	}
	return e.ProviderStatus != 0 && !e.Authoritative()
}

// IsAuthoritativeRejection reporta si err contiene un ExchangeError autoritativo.
func IsAuthoritativeRejection(err error) bool {
	var xe *ExchangeError
	return errors.As(err, &xe) && xe.Authoritative()
}
