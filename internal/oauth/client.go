// Package oauth implementa el cliente de intercambio OAuth 2.0 (authorization code
// y refresh) para los proveedores soportados, sobre golang.org/x/oauth2.
//
// No persiste nada: devuelve types.TokenBundle y repository.Profile normalizados.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/dropDatabas3/devpulse/internal/domain/repository"
	"github.com/dropDatabas3/devpulse/internal/domain/types"
	"github.com/dropDatabas3/devpulse/internal/metrics"
	"github.com/dropDatabas3/devpulse/internal/observability/logger"
	"github.com/dropDatabas3/devpulse/internal/observability/tracing"
)

// DefaultTimeout para token endpoints y APIs de perfil.
const DefaultTimeout = 10 * time.Second

// Options configura un proveedor. URLs vacías usan los endpoints públicos.
type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
}

// provider encapsula lo que cambia entre GitHub y Jira.
type provider struct {
	kind       types.ProviderKind
	cfg        *oauth2.Config
	authParams []oauth2.AuthCodeOption
	profile    func(ctx context.Context, accessToken string) (repository.Profile, error)
}

// Client intercambia codes y refresh tokens contra los proveedores registrados.
type Client struct {
	hc        *http.Client
	now       func() time.Time
	providers map[types.ProviderKind]*provider
}

// New crea un cliente sin proveedores. timeout <= 0 usa DefaultTimeout.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		hc:        &http.Client{Timeout: timeout},
		now:       time.Now,
		providers: make(map[types.ProviderKind]*provider),
	}
}

// HTTPClient devuelve el cliente saliente compartido (mismo timeout).
func (c *Client) HTTPClient() *http.Client { return c.hc }

// Register habilita kind con opts. Sin credenciales el proveedor queda deshabilitado.
func (c *Client) Register(kind types.ProviderKind, opts Options) error {
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return fmt.Errorf("%w: %s", ErrNotConfigured, kind)
	}
	var p *provider
	switch kind {
	case types.ProviderGitHub:
		p = newGitHub(opts, c.hc)
	case types.ProviderJira:
		p = newJira(opts, c.hc)
	default:
		return types.ErrUnknownProvider
	}
	c.providers[kind] = p
	return nil
}

// Enabled reporta si kind fue registrado.
func (c *Client) Enabled(kind types.ProviderKind) bool {
	_, ok := c.providers[kind]
	return ok
}

func (c *Client) get(kind types.ProviderKind) (*provider, error) {
	p, ok := c.providers[kind]
	if !ok {
		if !kind.Valid() {
			return nil, types.ErrUnknownProvider
		}
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, kind)
	}
	return p, nil
}

// AuthCodeURL arma la URL de autorización con los scopes del proveedor.
func (c *Client) AuthCodeURL(kind types.ProviderKind, state string) (string, error) {
	p, err := c.get(kind)
	if err != nil {
		return "", err
	}
	return p.cfg.AuthCodeURL(state, p.authParams...), nil
}

// ExchangeCode canjea un authorization code. Un code nunca se reintenta.
func (c *Client) ExchangeCode(ctx context.Context, kind types.ProviderKind, code string) (b types.TokenBundle, err error) {
	p, err := c.get(kind)
	if err != nil {
		return types.TokenBundle{}, err
	}
	ctx, span := tracing.Start(ctx, "oauth.exchange_code", tracing.Provider(string(kind)))
	defer func() {
		metrics.CodeExchanges.WithLabelValues(string(kind), resultLabel(err)).Inc()
		tracing.End(span, err)
	}()

	tok, err := p.cfg.Exchange(c.ctx(ctx), code)
	if err != nil {
		return types.TokenBundle{}, c.mapError(ctx, kind, "exchange_code", err)
	}
	return c.bundle(tok), nil
}

// ExchangeRefreshToken obtiene un access token nuevo. Si el proveedor rota, el
// RefreshToken devuelto reemplaza al anterior.
func (c *Client) ExchangeRefreshToken(ctx context.Context, kind types.ProviderKind, refreshToken string) (b types.TokenBundle, err error) {
	p, err := c.get(kind)
	if err != nil {
		return types.TokenBundle{}, err
	}
	ctx, span := tracing.Start(ctx, "oauth.refresh", tracing.Provider(string(kind)))
	defer func() { tracing.End(span, err) }()

	// Token sin access token ni expiry: el TokenSource siempre va al token endpoint.
	tok, err := p.cfg.TokenSource(c.ctx(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return types.TokenBundle{}, c.mapError(ctx, kind, "refresh", err)
	}
	b = c.bundle(tok)
	if b.RefreshToken == refreshToken {
		// x/oauth2 copia el refresh token viejo cuando el proveedor no rota.
		b.RefreshToken = ""
	}
	return b, nil
}

// FetchProfile obtiene el perfil acotado del usuario en el proveedor.
func (c *Client) FetchProfile(ctx context.Context, kind types.ProviderKind, accessToken string) (repository.Profile, error) {
	p, err := c.get(kind)
	if err != nil {
		return repository.Profile{}, err
	}
	return p.profile(ctx, accessToken)
}

// ctx inyecta el http.Client con timeout para x/oauth2.
func (c *Client) ctx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.hc)
}

func (c *Client) bundle(tok *oauth2.Token) types.TokenBundle {
	b := types.TokenBundle{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if s, ok := tok.Extra("scope").(string); ok {
		b.Scope = s
	}
	if !tok.Expiry.IsZero() {
		if secs := int64(tok.Expiry.Sub(c.now()).Round(time.Second) / time.Second); secs > 0 {
			b.ExpiresIn = secs
		} else {
			b.ExpiresIn = 1
		}
	}
	return b
}

func (c *Client) mapError(ctx context.Context, kind types.ProviderKind, op string, err error) error {
	log := logger.From(ctx).With(logger.Component("oauth"), logger.Provider(string(kind)), logger.Op(op))

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		xe := &ExchangeError{
			Provider:        kind,
			ProviderStatus:  status,
			ProviderCode:    re.ErrorCode,
			ProviderMessage: re.ErrorDescription,
		}
		if xe.transient() {
			log.Warn("provider token endpoint failed", logger.ProviderStatus(status), logger.String("provider_code", xe.ProviderCode))
			return fmt.Errorf("%w: %s", ErrProviderUnavailable, xe.Error())
		}
		if xe.ProviderMessage == "" && xe.ProviderCode == "" {
			xe.ProviderMessage = truncate(string(re.Body), 200)
		}
		log.Info("provider rejected grant", logger.ProviderStatus(status), logger.String("provider_code", xe.ProviderCode))
		return xe
	}
	if ctx.Err() != nil || isNetErr(err) {
		log.Warn("provider token endpoint unreachable", logger.Err(err))
		return fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, kind, err)
	}
	// Respuesta 2xx inválida (ej: sin access_token).
	log.Warn("invalid token response", logger.Err(err))
	return &ExchangeError{Provider: kind, ProviderMessage: err.Error()}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrProviderUnavailable):
		return "unavailable"
	default:
		return "rejected"
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
