// Package cache provee un key/value efímero con soporte multi-backend.
//
// Soporta:
//   - memory (in-process, go-cache; dev/testing o una sola réplica)
//   - redis (compartido entre réplicas)
//
// Se usa para state de correlación OAuth (single-use), leases de refresh y el
// espejo de sesión.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client define las operaciones de cache.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe o expiró.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda un valor. ttl 0 = no expira.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX guarda solo si la key no existe. Retorna true si la escribió.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Take lee y borra atómicamente (single-use). Retorna ErrNotFound si no existe.
	Take(ctx context.Context, key string) (string, error)

	// Delete elimina una key. No existir no es error.
	Delete(ctx context.Context, key string) error

	Ping(ctx context.Context) error
	Close() error
}

// Config configuración para crear un cliente de cache.
type Config struct {
	Driver   string // "memory" | "redis"
	Addr     string // host:port
	Password string
	DB       int
	Prefix   string
}

// ErrNotFound indica que la key no existe o expiró.
var ErrNotFound = errors.New("cache: key not found")

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// New crea un cliente según la configuración.
func New(cfg Config) (Client, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedis(cfg)
	case "memory", "":
		return NewMemory(cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("cache: unknown driver %q", cfg.Driver)
	}
}

func prefixed(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + ":" + k
}
