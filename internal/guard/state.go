package guard

import (
	"time"

	"github.com/dropDatabas3/devpulse/internal/domain/repository"
)

// DefaultSafetyMargin: un token que expira dentro de este margen se considera vencido.
const DefaultSafetyMargin = 300 * time.Second

// State es el resultado de evaluar una conexión.
type State int

const (
	// Fresh: usar el access token tal cual.
	Fresh State = iota
	// Stale: vencido o dentro del margen, con refresh token disponible.
	Stale
	// Unrecoverable: requiere que el usuario vuelva a conectar.
	Unrecoverable
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "unrecoverable"
	}
}

// Evaluate clasifica la conexión sin efectos. Sin expiración es Fresh (los
// tokens de OAuth apps de GitHub no expiran).
func Evaluate(c *repository.Connection, now time.Time, margin time.Duration) State {
	if c == nil || c.AccessToken == "" || c.Status == repository.ConnectionNeedsReconnect {
		return Unrecoverable
	}
	if c.ExpiresAt == nil || c.ExpiresAt.After(now.Add(margin)) {
		return Fresh
	}
	if c.RefreshToken == "" {
		return Unrecoverable
	}
	return Stale
}
