// Package correlator vincula el callback OAuth de un proveedor con el usuario que
// inició la conexión y, si la correlación es válida, persiste la conexión.
//
// Modo server_state (default): Initiate emite un state opaco de 256 bits, de un
// solo uso, guardado en cache y ligado a {uid, provider}. Modo identity_token:
// el state es el ID token del usuario y se re-verifica en el callback.
package correlator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/devpulse/internal/audit"
	"github.com/dropDatabas3/devpulse/internal/cache"
	"github.com/dropDatabas3/devpulse/internal/domain/repository"
	"github.com/dropDatabas3/devpulse/internal/domain/types"
	"github.com/dropDatabas3/devpulse/internal/identity"
	"github.com/dropDatabas3/devpulse/internal/metrics"
	"github.com/dropDatabas3/devpulse/internal/observability/logger"
	"github.com/dropDatabas3/devpulse/internal/observability/tracing"
	"github.com/dropDatabas3/devpulse/internal/security/tokens"
)

// Mode selecciona cómo se correlaciona el callback.
type Mode string

const (
	ModeServerState   Mode = "server_state"
	ModeIdentityToken Mode = "identity_token"
)

// DefaultStateTTL es la vida del state emitido por Initiate.
const DefaultStateTTL = 10 * time.Minute

// ErrCorrelationFailed: el callback no pudo vincularse a un usuario. No hay escrituras.
var ErrCorrelationFailed = errors.New("oauth callback correlation failed")

// ProviderDeniedError: el proveedor redirigió con ?error= (ej: access_denied).
type ProviderDeniedError struct {
	Provider    types.ProviderKind
	Code        string
	Description string
}

func (e *ProviderDeniedError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s authorization denied: %s: %s", e.Provider, e.Code, e.Description)
	}
	return fmt.Sprintf("%s authorization denied: %s", e.Provider, e.Code)
}

// Exchanger es la parte del cliente OAuth que usa el correlator.
type Exchanger interface {
	AuthCodeURL(kind types.ProviderKind, state string) (string, error)
	ExchangeCode(ctx context.Context, kind types.ProviderKind, code string) (types.TokenBundle, error)
	FetchProfile(ctx context.Context, kind types.ProviderKind, accessToken string) (repository.Profile, error)
}

// CallbackParams son los query params del redirect del proveedor.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Result describe una conexión completada.
type Result struct {
	UID        string
	Connection *repository.Connection
}

type Config struct {
	Mode Mode
	TTL  time.Duration
}

// binding es lo que se guarda en cache bajo el state.
type binding struct {
	UID      string             `json:"uid"`
	Provider types.ProviderKind `json:"provider"`
	Email    string             `json:"email,omitempty"`
	Name     string             `json:"name,omitempty"`
	Picture  string             `json:"picture,omitempty"`
}

type Correlator struct {
	verifier identity.Verifier
	oauth    Exchanger
	store    repository.Store
	states   cache.Client
	cfg      Config
	now      func() time.Time
}

func New(v identity.Verifier, x Exchanger, st repository.Store, states cache.Client, cfg Config) *Correlator {
	if cfg.Mode == "" {
		cfg.Mode = ModeServerState
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultStateTTL
	}
	return &Correlator{verifier: v, oauth: x, store: st, states: states, cfg: cfg, now: time.Now}
}

func stateKey(state string) string { return "oauth:state:" + tokens.SHA256Base64URL(state) }

// Initiate verifica la identidad y devuelve la URL de autorización del proveedor.
func (c *Correlator) Initiate(ctx context.Context, kind types.ProviderKind, identityToken string) (string, error) {
	if !kind.Valid() {
		return "", types.ErrUnknownProvider
	}
	id, err := c.verifier.Verify(ctx, identityToken)
	if err != nil {
		return "", err
	}
	log := logger.From(ctx).With(logger.Component("correlator"), logger.UserID(id.UID), logger.Provider(string(kind)))

	state := identityToken
	if c.cfg.Mode == ModeServerState {
		if state, err = tokens.GenerateOpaqueToken(32); err != nil {
			return "", err
		}
		b, _ := json.Marshal(binding{UID: id.UID, Provider: kind, Email: id.Email, Name: id.Name, Picture: id.Picture})
		if err := c.states.Set(ctx, stateKey(state), string(b), c.cfg.TTL); err != nil {
			return "", fmt.Errorf("store oauth state: %w", err)
		}
	}

	u, err := c.oauth.AuthCodeURL(kind, state)
	if err != nil {
		return "", err
	}
	log.Info("oauth connect initiated", logger.String("mode", string(c.cfg.Mode)))
	return u, nil
}

// Complete procesa el callback. El error del proveedor corta antes de cualquier
// intercambio; una correlación inválida devuelve ErrCorrelationFailed sin escribir.
func (c *Correlator) Complete(ctx context.Context, kind types.ProviderKind, p CallbackParams) (_ *Result, err error) {
	ctx, span := tracing.Start(ctx, "correlator.complete", tracing.Provider(string(kind)))
	defer func() { tracing.End(span, err) }()
	log := logger.From(ctx).With(logger.Component("correlator"), logger.Provider(string(kind)))

	if !kind.Valid() {
		return nil, types.ErrUnknownProvider
	}

	if p.Error != "" {
		// invalidar el state igual: es de un solo uso
		if c.cfg.Mode == ModeServerState && p.State != "" {
			_, _ = c.states.Take(ctx, stateKey(p.State))
		}
		c.fail(kind, "provider_denied")
		log.Info("provider denied authorization", logger.String("provider_error", p.Error))
		audit.Log(ctx, audit.Denied, "", kind, logger.String("provider_error", p.Error))
		return nil, &ProviderDeniedError{Provider: kind, Code: p.Error, Description: p.ErrorDescription}
	}

	b, err := c.resolve(ctx, kind, p.State)
	if err != nil {
		log.Warn("callback correlation failed", logger.Err(err))
		return nil, err
	}
	log = log.With(logger.UserID(b.UID))
	if p.Code == "" {
		c.fail(kind, "missing_code")
		return nil, fmt.Errorf("%w: missing code", ErrCorrelationFailed)
	}

	bundle, err := c.oauth.ExchangeCode(ctx, kind, p.Code)
	if err != nil {
		log.Warn("code exchange failed", logger.Err(err))
		return nil, err
	}
	now := c.now()

	profile, err := c.oauth.FetchProfile(ctx, kind, bundle.AccessToken)
	if err != nil {
		// la conexión sirve sin perfil; se reintenta en la próxima conexión
		log.Warn("profile fetch failed", logger.Err(err))
	}

	if err := c.store.Users().Ensure(ctx, repository.User{
		UID:         b.UID,
		Email:       b.Email,
		DisplayName: b.Name,
		PhotoURL:    b.Picture,
	}); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	conn := &repository.Connection{
		UserID:       b.UID,
		Provider:     kind,
		AccessToken:  bundle.AccessToken,
		RefreshToken: bundle.RefreshToken,
		TokenType:    bundle.NormalizedTokenType(),
		Scope:        bundle.Scope,
		ExpiresAt:    bundle.ExpiresAt(now),
		Profile:      profile,
		Status:       repository.ConnectionActive,
	}
	if err := c.store.Connections().Upsert(ctx, conn); err != nil {
		return nil, fmt.Errorf("upsert connection: %w", err)
	}

	audit.Log(ctx, audit.Connected, b.UID, kind,
		logger.TokenPreview(types.Preview(conn.AccessToken)),
		logger.Bool("has_refresh_token", conn.RefreshToken != ""),
		logger.String("account_id", profile.AccountID),
	)
	return &Result{UID: b.UID, Connection: conn}, nil
}

// resolve obtiene el binding del state según el modo.
func (c *Correlator) resolve(ctx context.Context, kind types.ProviderKind, state string) (*binding, error) {
	if state == "" {
		c.fail(kind, "missing_state")
		return nil, fmt.Errorf("%w: missing state", ErrCorrelationFailed)
	}

	if c.cfg.Mode == ModeIdentityToken {
		id, err := c.verifier.Verify(ctx, state)
		if err != nil {
			// identity token vencido entre initiate y callback: fail closed
			c.fail(kind, "invalid_identity")
			return nil, fmt.Errorf("%w: %w", ErrCorrelationFailed, err)
		}
		return &binding{UID: id.UID, Provider: kind, Email: id.Email, Name: id.Name, Picture: id.Picture}, nil
	}

	raw, err := c.states.Take(ctx, stateKey(state))
	if err != nil {
		if cache.IsNotFound(err) {
			c.fail(kind, "unknown_state")
			return nil, fmt.Errorf("%w: unknown or reused state", ErrCorrelationFailed)
		}
		return nil, fmt.Errorf("read oauth state: %w", err)
	}
	var b binding
	if err := json.Unmarshal([]byte(raw), &b); err != nil || b.UID == "" {
		c.fail(kind, "corrupt_state")
		return nil, fmt.Errorf("%w: corrupt state", ErrCorrelationFailed)
	}
	if b.Provider != kind {
		c.fail(kind, "provider_mismatch")
		return nil, fmt.Errorf("%w: state issued for %s", ErrCorrelationFailed, b.Provider)
	}
	return &b, nil
}

func (c *Correlator) fail(kind types.ProviderKind, reason string) {
	metrics.CorrelationFailures.WithLabelValues(string(kind), reason).Inc()
}
