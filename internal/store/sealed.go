package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/dropDatabas3/devpulse/internal/domain/repository"
	"github.com/dropDatabas3/devpulse/internal/domain/types"
	"github.com/dropDatabas3/devpulse/internal/security/secretbox"
)

// sealedPrefix marca valores cifrados; lo que no lo tenga se lee tal cual
// (filas escritas antes de habilitar el cifrado).
const sealedPrefix = "sb1:"

// Seal decora un Store para cifrar access/refresh tokens at-rest.
func Seal(inner repository.Store, box *secretbox.Box) repository.Store {
	return &sealedStore{inner: inner, conns: &sealedConnections{inner: inner.Connections(), box: box}}
}

type sealedStore struct {
	inner repository.Store
	conns *sealedConnections
}

func (s *sealedStore) Users() repository.UserRepository             { return s.inner.Users() }
func (s *sealedStore) Connections() repository.ConnectionRepository { return s.conns }
func (s *sealedStore) Ping(ctx context.Context) error               { return s.inner.Ping(ctx) }
func (s *sealedStore) Close() error                                 { return s.inner.Close() }

type sealedConnections struct {
	inner repository.ConnectionRepository
	box   *secretbox.Box
}

func (r *sealedConnections) seal(v string) (string, error) {
	if v == "" {
		return "", nil
	}
	ct, err := r.box.Seal(v)
	if err != nil {
		return "", err
	}
	return sealedPrefix + ct, nil
}

func (r *sealedConnections) open(v string) (string, error) {
	if !strings.HasPrefix(v, sealedPrefix) {
		return v, nil
	}
	return r.box.Open(strings.TrimPrefix(v, sealedPrefix))
}

func (r *sealedConnections) openConn(c *repository.Connection) error {
	var err error
	if c.AccessToken, err = r.open(c.AccessToken); err != nil {
		return fmt.Errorf("store: open access token: %w", err)
	}
	if c.RefreshToken, err = r.open(c.RefreshToken); err != nil {
		return fmt.Errorf("store: open refresh token: %w", err)
	}
	return nil
}

func (r *sealedConnections) Get(ctx context.Context, uid string, provider types.ProviderKind) (*repository.Connection, error) {
	c, err := r.inner.Get(ctx, uid, provider)
	if err != nil {
		return nil, err
	}
	if err := r.openConn(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *sealedConnections) List(ctx context.Context, uid string) ([]repository.Connection, error) {
	list, err := r.inner.List(ctx, uid)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if err := r.openConn(&list[i]); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (r *sealedConnections) Upsert(ctx context.Context, c *repository.Connection) error {
	cp := *c
	var err error
	if cp.AccessToken, err = r.seal(c.AccessToken); err != nil {
		return err
	}
	if cp.RefreshToken, err = r.seal(c.RefreshToken); err != nil {
		return err
	}
	if err := r.inner.Upsert(ctx, &cp); err != nil {
		return err
	}
	c.ID, c.CreatedAt, c.UpdatedAt = cp.ID, cp.CreatedAt, cp.UpdatedAt
	return nil
}

// UpdateTokens resuelve la precondición sobre el valor descifrado: el cifrado no es
// determinístico, así que se compara en claro y se delega el CAS con el ciphertext leído.
func (r *sealedConnections) UpdateTokens(ctx context.Context, uid string, provider types.ProviderKind, upd repository.TokenUpdate) error {
	if upd.ExpectedRefreshToken != "" {
		raw, err := r.inner.Get(ctx, uid, provider)
		if err != nil {
			return err
		}
		current, err := r.open(raw.RefreshToken)
		if err != nil {
			return err
		}
		if current != upd.ExpectedRefreshToken {
			return repository.ErrPreconditionFailed
		}
		upd.ExpectedRefreshToken = raw.RefreshToken
	}

	var err error
	if upd.AccessToken, err = r.seal(upd.AccessToken); err != nil {
		return err
	}
	if upd.RefreshToken, err = r.seal(upd.RefreshToken); err != nil {
		return err
	}
	return r.inner.UpdateTokens(ctx, uid, provider, upd)
}

func (r *sealedConnections) MarkNeedsReconnect(ctx context.Context, uid string, provider types.ProviderKind, reason string) error {
	return r.inner.MarkNeedsReconnect(ctx, uid, provider, reason)
}

func (r *sealedConnections) Delete(ctx context.Context, uid string, provider types.ProviderKind) error {
	return r.inner.Delete(ctx, uid, provider)
}
