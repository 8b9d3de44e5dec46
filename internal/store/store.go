// Package store abre el Connection Store según la configuración.
//
// Los adapters se registran a sí mismos en init() (ver store/adapters/...); el
// binario los importa con blank import. Open decora el resultado con Sealed
// cuando hay una clave de cifrado configurada.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dropDatabas3/devpulse/internal/domain/repository"
	"github.com/dropDatabas3/devpulse/internal/security/secretbox"
)

// ErrUnknownDriver indica que no hay adapter registrado para el driver pedido.
var ErrUnknownDriver = errors.New("store: unknown driver")

// Config configura el adapter.
type Config struct {
	Driver       string // "memory" | "postgres" | "sqlite"
	DSN          string
	MaxOpenConns int
	MaxIdleConns int

	// Box opcional: si está presente, los tokens se cifran at-rest.
	Box *secretbox.Box
}

// Adapter crea conexiones para un driver.
type Adapter interface {
	Name() string
	Open(ctx context.Context, cfg Config) (repository.Store, error)
}

// Migratable lo implementan los adapters con esquema SQL.
type Migratable interface {
	Migrate(ctx context.Context) (*MigrationResult, error)
}

var (
	adaptersMu sync.RWMutex
	adapters   = map[string]Adapter{}
)

// RegisterAdapter registra un adapter. Pensado para init().
func RegisterAdapter(a Adapter) {
	adaptersMu.Lock()
	defer adaptersMu.Unlock()
	adapters[a.Name()] = a
}

// Drivers lista los drivers registrados.
func Drivers() []string {
	adaptersMu.RLock()
	defer adaptersMu.RUnlock()
	out := make([]string, 0, len(adapters))
	for name := range adapters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Open abre el store del driver configurado.
func Open(ctx context.Context, cfg Config) (repository.Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "memory"
	}
	adaptersMu.RLock()
	a, ok := adapters[driver]
	adaptersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownDriver, driver, Drivers())
	}

	st, err := a.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Box != nil {
		return Seal(st, cfg.Box), nil
	}
	return st, nil
}

// Migrate aplica migraciones si el store lo soporta. No-op para memory.
func Migrate(ctx context.Context, st repository.Store) (*MigrationResult, error) {
	if s, ok := st.(*sealedStore); ok {
		st = s.inner
	}
	m, ok := st.(Migratable)
	if !ok {
		return &MigrationResult{}, nil
	}
	return m.Migrate(ctx)
}
