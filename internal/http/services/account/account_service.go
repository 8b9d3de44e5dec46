// Package account contiene la lógica de los endpoints de cuenta: documento de
// usuario, desconexión y restauración de sesión.
package account

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/devpulse/internal/audit"
	"github.com/dropDatabas3/devpulse/internal/domain/repository"
	"github.com/dropDatabas3/devpulse/internal/domain/types"
	"github.com/dropDatabas3/devpulse/internal/identity"
	"github.com/dropDatabas3/devpulse/internal/observability/logger"
	"github.com/dropDatabas3/devpulse/internal/sessionbridge"
)

// Me es la respuesta de /api/me. Si el usuario nunca conectó nada solo trae uid.
type Me struct {
	UID         string                       `json:"uid"`
	Email       string                       `json:"email,omitempty"`
	DisplayName string                       `json:"displayName,omitempty"`
	PhotoURL    string                       `json:"photoURL,omitempty"`
	Providers   []sessionbridge.ProviderView `json:"providers,omitempty"`
}

type Service interface {
	Me(ctx context.Context, id identity.Identity) (*Me, error)
	Disconnect(ctx context.Context, uid, sid string, kind types.ProviderKind) error
	View(ctx context.Context, uid string) (*sessionbridge.SessionView, error)
	Restore(ctx context.Context, uid, sid string) (*sessionbridge.SessionView, string, error)
	Session(ctx context.Context, sid string) (*sessionbridge.SessionView, error)
	Logout(ctx context.Context, sid string) error
}

type service struct {
	store  repository.Store
	bridge *sessionbridge.Bridge
}

func NewService(st repository.Store, b *sessionbridge.Bridge) Service {
	return &service{store: st, bridge: b}
}

func (s *service) Me(ctx context.Context, id identity.Identity) (*Me, error) {
	u, err := s.store.Users().Get(ctx, id.UID)
	if repository.IsNotFound(err) {
		return &Me{UID: id.UID}, nil
	}
	if err != nil {
		return nil, err
	}
	view, err := s.bridge.View(ctx, id.UID)
	if err != nil {
		return nil, err
	}
	return &Me{
		UID:         u.UID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
		Providers:   view.Providers,
	}, nil
}

// Disconnect borra la conexión y actualiza el espejo de la sesión sid, si la
// hay. Desconectar algo no conectado no es error.
func (s *service) Disconnect(ctx context.Context, uid, sid string, kind types.ProviderKind) error {
	if err := s.store.Connections().Delete(ctx, uid, kind); err != nil {
		return fmt.Errorf("disconnect %s: %w", kind, err)
	}
	audit.Log(ctx, audit.Disconnected, uid, kind)
	if err := s.bridge.Sync(ctx, uid, sid); err != nil {
		logger.From(ctx).Warn("session mirror not updated after disconnect", logger.Provider(string(kind)), logger.Err(err))
	}
	return nil
}

func (s *service) View(ctx context.Context, uid string) (*sessionbridge.SessionView, error) {
	return s.bridge.View(ctx, uid)
}

func (s *service) Restore(ctx context.Context, uid, sid string) (*sessionbridge.SessionView, string, error) {
	return s.bridge.Restore(ctx, uid, sid)
}

func (s *service) Session(ctx context.Context, sid string) (*sessionbridge.SessionView, error) {
	return s.bridge.Lookup(ctx, sid)
}

func (s *service) Logout(ctx context.Context, sid string) error {
	return s.bridge.Clear(ctx, sid)
}
