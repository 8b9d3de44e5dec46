package repository

import (
	"context"
	"time"

	"github.com/dropDatabas3/devpulse/internal/domain/types"
)

// ConnectionStatus indica si la conexión sigue siendo utilizable.
type ConnectionStatus string

const (
	ConnectionActive ConnectionStatus = "active"
	// ConnectionNeedsReconnect se setea solo ante un rechazo autoritativo del proveedor (invalid_grant).
	ConnectionNeedsReconnect ConnectionStatus = "needs_reconnect"
)

// Profile es el snapshot acotado del perfil del usuario en el proveedor.
type Profile struct {
	AccountID   string `json:"accountId,omitempty"`
	Login       string `json:"login,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	ProfileURL  string `json:"profileUrl,omitempty"`
	// Jira Cloud
	CloudID string `json:"cloudId,omitempty"`
	SiteURL string `json:"siteUrl,omitempty"`
}

// Connection es la credencial OAuth de un usuario para un proveedor.
type Connection struct {
	ID           string
	UserID       string
	Provider     types.ProviderKind
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresAt    *time.Time // nil = no expira
	Profile      Profile
	Status       ConnectionStatus
	StatusReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TokenUpdate describe la escritura atómica de un refresh exitoso.
type TokenUpdate struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresAt    *time.Time
	UpdatedAt    time.Time

	// ExpectedRefreshToken, si no está vacío, condiciona la escritura a que el refresh token
	// almacenado siga siendo este. Retorna ErrPreconditionFailed si no coincide.
	ExpectedRefreshToken string
}

// ApplyBundle produce el TokenUpdate para un bundle recibido del proveedor.
// Si el proveedor no rotó el refresh token se conserva el actual.
func ApplyBundle(c *Connection, b types.TokenBundle, now time.Time) TokenUpdate {
	upd := TokenUpdate{
		AccessToken:          b.AccessToken,
		RefreshToken:         c.RefreshToken,
		TokenType:            b.NormalizedTokenType(),
		Scope:                c.Scope,
		ExpiresAt:            b.ExpiresAt(now),
		UpdatedAt:            now.UTC(),
		ExpectedRefreshToken: c.RefreshToken,
	}
	if b.RefreshToken != "" {
		upd.RefreshToken = b.RefreshToken
	}
	if b.Scope != "" {
		upd.Scope = b.Scope
	}
	return upd
}

// Apply aplica el update en memoria (usado por adapters y tests).
func (u TokenUpdate) Apply(c *Connection) {
	c.AccessToken = u.AccessToken
	c.RefreshToken = u.RefreshToken
	c.TokenType = u.TokenType
	c.Scope = u.Scope
	c.ExpiresAt = u.ExpiresAt
	c.UpdatedAt = u.UpdatedAt
	c.Status = ConnectionActive
	c.StatusReason = ""
}

// ConnectionRepository persiste las conexiones OAuth por usuario.
type ConnectionRepository interface {
	// Get retorna ErrNotFound si el usuario no conectó ese proveedor.
	Get(ctx context.Context, uid string, provider types.ProviderKind) (*Connection, error)

	// List retorna las conexiones del usuario ordenadas por proveedor.
	List(ctx context.Context, uid string) ([]Connection, error)

	// Upsert crea o reemplaza la conexión (uid, provider) sin tocar las de otros proveedores.
	Upsert(ctx context.Context, c *Connection) error

	// UpdateTokens escribe todos los campos del token en una sola escritura.
	// Retorna ErrNotFound si la conexión fue eliminada entretanto.
	UpdateTokens(ctx context.Context, uid string, provider types.ProviderKind, upd TokenUpdate) error

	// MarkNeedsReconnect deja la conexión en el store pero marcada como inutilizable.
	MarkNeedsReconnect(ctx context.Context, uid string, provider types.ProviderKind, reason string) error

	// Delete elimina la conexión. Es idempotente: no existir no es error.
	Delete(ctx context.Context, uid string, provider types.ProviderKind) error
}

// Store agrupa los repositorios que expone un adapter.
type Store interface {
	Users() UserRepository
	Connections() ConnectionRepository
	Ping(ctx context.Context) error
	Close() error
}
