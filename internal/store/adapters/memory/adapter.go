// Package memory implementa el Connection Store en memoria (dev/tests).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/devpulse/internal/domain/repository"
	"github.com/dropDatabas3/devpulse/internal/domain/types"
	"github.com/dropDatabas3/devpulse/internal/store"
)

func init() {
	store.RegisterAdapter(adapter{})
}

type adapter struct{}

func (adapter) Name() string { return "memory" }

func (adapter) Open(_ context.Context, _ store.Config) (repository.Store, error) {
	return New(), nil
}

// Store guarda documentos por uid. Todas las escrituras toman el lock global,
// lo que hace atómica cada escritura de fila.
type Store struct {
	mu    sync.RWMutex
	users map[string]repository.User
	conns map[string]map[types.ProviderKind]repository.Connection
	now   func() time.Time
}

// New crea un store vacío.
func New() *Store {
	return &Store{
		users: map[string]repository.User{},
		conns: map[string]map[types.ProviderKind]repository.Connection{},
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Users() repository.UserRepository             { return (*userRepo)(s) }
func (s *Store) Connections() repository.ConnectionRepository { return (*connRepo)(s) }
func (s *Store) Ping(context.Context) error                   { return nil }
func (s *Store) Close() error                                 { return nil }

// ─── Users ───

type userRepo Store

func (r *userRepo) Get(_ context.Context, uid string) (*repository.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[uid]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *userRepo) Ensure(_ context.Context, in repository.User) error {
	if in.UID == "" {
		return repository.ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	u, ok := r.users[in.UID]
	if !ok {
		u = repository.User{UID: in.UID, CreatedAt: now}
	}
	mergeUser(&u, in)
	u.UpdatedAt = now
	r.users[in.UID] = u
	return nil
}

func mergeUser(dst *repository.User, in repository.User) {
	if in.Email != "" {
		dst.Email = in.Email
	}
	if in.DisplayName != "" {
		dst.DisplayName = in.DisplayName
	}
	if in.PhotoURL != "" {
		dst.PhotoURL = in.PhotoURL
	}
}

// ─── Connections ───

type connRepo Store

func (r *connRepo) Get(_ context.Context, uid string, provider types.ProviderKind) (*repository.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[uid][provider]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneConn(c), nil
}

func (r *connRepo) List(_ context.Context, uid string) ([]repository.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]repository.Connection, 0, len(r.conns[uid]))
	for _, c := range r.conns[uid] {
		out = append(out, *cloneConn(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func (r *connRepo) Upsert(_ context.Context, c *repository.Connection) error {
	if c.UserID == "" || !c.Provider.Valid() || c.AccessToken == "" {
		return repository.ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()

	if _, ok := r.users[c.UserID]; !ok {
		r.users[c.UserID] = repository.User{UID: c.UserID, CreatedAt: now, UpdatedAt: now}
	}
	byKind := r.conns[c.UserID]
	if byKind == nil {
		byKind = map[types.ProviderKind]repository.Connection{}
		r.conns[c.UserID] = byKind
	}
	if prev, ok := byKind[c.Provider]; ok {
		c.ID = prev.ID
		c.CreatedAt = prev.CreatedAt
	} else {
		c.ID = uuid.NewString()
		c.CreatedAt = now
	}
	if c.Status == "" {
		c.Status = repository.ConnectionActive
	}
	c.UpdatedAt = now
	byKind[c.Provider] = *cloneConn(*c)
	return nil
}

func (r *connRepo) UpdateTokens(_ context.Context, uid string, provider types.ProviderKind, upd repository.TokenUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[uid][provider]
	if !ok {
		return repository.ErrNotFound
	}
	if upd.ExpectedRefreshToken != "" && c.RefreshToken != upd.ExpectedRefreshToken {
		return repository.ErrPreconditionFailed
	}
	if upd.UpdatedAt.IsZero() {
		upd.UpdatedAt = r.now()
	}
	upd.Apply(&c)
	r.conns[uid][provider] = c
	return nil
}

func (r *connRepo) MarkNeedsReconnect(_ context.Context, uid string, provider types.ProviderKind, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[uid][provider]
	if !ok {
		return repository.ErrNotFound
	}
	c.Status = repository.ConnectionNeedsReconnect
	c.StatusReason = reason
	c.UpdatedAt = r.now()
	r.conns[uid][provider] = c
	return nil
}

func (r *connRepo) Delete(_ context.Context, uid string, provider types.ProviderKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns[uid], provider)
	return nil
}

func cloneConn(c repository.Connection) *repository.Connection {
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}
