package repository

import (
	"context"
	"time"
)

// User es el documento de usuario de la app. El UID lo emite el identity provider.
type User struct {
	UID         string
	Email       string
	DisplayName string
	PhotoURL    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserRepository persiste documentos de usuario.
type UserRepository interface {
	// Get retorna ErrNotFound si el usuario todavía no tiene documento.
	Get(ctx context.Context, uid string) (*User, error)

	// Ensure crea el documento si no existe; si existe, hace merge de los campos no vacíos.
	Ensure(ctx context.Context, u User) error
}
