// Package sessionbridge reconstruye la vista de sesión de un usuario a partir del
// store y la espeja en cache bajo un id opaco, que viaja como cookie HttpOnly.
// Es best-effort: el store sigue siendo la fuente de verdad.
package sessionbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/devpulse/internal/cache"
	"github.com/dropDatabas3/devpulse/internal/domain/repository"
	"github.com/dropDatabas3/devpulse/internal/domain/types"
	"github.com/dropDatabas3/devpulse/internal/observability/logger"
	"github.com/dropDatabas3/devpulse/internal/security/tokens"
)

// ErrNoSession: el id no existe o expiró.
var ErrNoSession = errors.New("session not found")

const DefaultTTL = 24 * time.Hour

// ProviderView es lo que el frontend necesita de cada conexión. Sin tokens.
type ProviderView struct {
	Provider     types.ProviderKind          `json:"provider"`
	Status       repository.ConnectionStatus `json:"status"`
	Profile      repository.Profile          `json:"profile"`
	TokenPreview string                      `json:"tokenPreview,omitempty"`
	ExpiresAt    *time.Time                  `json:"expiresAt,omitempty"`
	ConnectedAt  time.Time                   `json:"connectedAt"`
}

// SessionView es el snapshot espejado en cache.
type SessionView struct {
	UID       string         `json:"uid"`
	Providers []ProviderView `json:"providers"`
	IssuedAt  time.Time      `json:"issuedAt"`
}

// Provider devuelve la vista de kind si está conectado.
func (s *SessionView) Provider(kind types.ProviderKind) (*ProviderView, bool) {
	for i := range s.Providers {
		if s.Providers[i].Provider == kind {
			return &s.Providers[i], true
		}
	}
	return nil, false
}

type Bridge struct {
	conns repository.ConnectionRepository
	cache cache.Client
	ttl   time.Duration
	now   func() time.Time
}

func New(conns repository.ConnectionRepository, c cache.Client, ttl time.Duration) *Bridge {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Bridge{conns: conns, cache: c, ttl: ttl, now: time.Now}
}

func key(sid string) string { return "session:" + tokens.SHA256Base64URL(sid) }

// TTL es la vida del espejo (y de la cookie).
func (b *Bridge) TTL() time.Duration { return b.ttl }

// View arma la vista desde el store, sin escribir nada.
func (b *Bridge) View(ctx context.Context, uid string) (*SessionView, error) {
	list, err := b.conns.List(ctx, uid)
	if err != nil {
		return nil, err
	}
	v := &SessionView{UID: uid, Providers: make([]ProviderView, 0, len(list)), IssuedAt: b.now().UTC()}
	for _, c := range list {
		v.Providers = append(v.Providers, ProviderView{
			Provider:     c.Provider,
			Status:       c.Status,
			Profile:      c.Profile,
			TokenPreview: types.Preview(c.AccessToken),
			ExpiresAt:    c.ExpiresAt,
			ConnectedAt:  c.CreatedAt,
		})
	}
	return v, nil
}

// Restore reconstruye la vista de uid y la espeja. Si sid no está vacío se
// reutiliza (restaurar dos veces deja el mismo estado); si no, se emite uno nuevo.
func (b *Bridge) Restore(ctx context.Context, uid, sid string) (*SessionView, string, error) {
	log := logger.From(ctx).With(logger.Component("sessionbridge"), logger.UserID(uid))

	v, err := b.View(ctx, uid)
	if err != nil {
		return nil, "", err
	}
	if len(v.Providers) == 0 {
		log.Info("restore: user has no connections")
	}

	if sid != "" {
		// un sid de otro usuario no se reutiliza
		if cur, err := b.Lookup(ctx, sid); err != nil || cur.UID != uid {
			sid = ""
		}
	}
	if sid == "" {
		if sid, err = tokens.GenerateOpaqueToken(32); err != nil {
			return nil, "", err
		}
	}

	if err := b.mirror(ctx, sid, v); err != nil {
		return nil, "", err
	}
	log.Debug("session restored", logger.Count(len(v.Providers)))
	return v, sid, nil
}

// Sync reescribe el espejo de sid con el estado actual del store de uid. Un sid
// inexistente o de otro usuario no se toca. Si no puede reescribirlo, lo borra.
func (b *Bridge) Sync(ctx context.Context, uid, sid string) error {
	cur, err := b.Lookup(ctx, sid)
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	if err == nil && cur.UID != uid {
		return nil
	}
	if err == nil {
		var v *SessionView
		if v, err = b.View(ctx, uid); err == nil {
			err = b.mirror(ctx, sid, v)
		}
	}
	if err != nil {
		return errors.Join(err, b.Clear(ctx, sid))
	}
	return nil
}

func (b *Bridge) mirror(ctx context.Context, sid string, v *SessionView) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := b.cache.Set(ctx, key(sid), string(raw), b.ttl); err != nil {
		return fmt.Errorf("session mirror: %w", err)
	}
	return nil
}

// Lookup resuelve un id de sesión. ErrNoSession si no existe.
func (b *Bridge) Lookup(ctx context.Context, sid string) (*SessionView, error) {
	if sid == "" {
		return nil, ErrNoSession
	}
	raw, err := b.cache.Get(ctx, key(sid))
	if err != nil {
		if cache.IsNotFound(err) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	var v SessionView
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, ErrNoSession
	}
	return &v, nil
}

// Clear elimina el espejo. Idempotente.
func (b *Bridge) Clear(ctx context.Context, sid string) error {
	if sid == "" {
		return nil
	}
	return b.cache.Delete(ctx, key(sid))
}
