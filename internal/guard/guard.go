// Package guard entrega access tokens utilizables: evalúa la conexión y, si está
// vencida, hace exactamente un refresh inline y persiste el resultado antes de
// devolverlo.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/devpulse/internal/audit"
	"github.com/dropDatabas3/devpulse/internal/cache"
	"github.com/dropDatabas3/devpulse/internal/domain/repository"
	"github.com/dropDatabas3/devpulse/internal/domain/types"
	"github.com/dropDatabas3/devpulse/internal/metrics"
	"github.com/dropDatabas3/devpulse/internal/oauth"
	"github.com/dropDatabas3/devpulse/internal/observability/logger"
	"github.com/dropDatabas3/devpulse/internal/observability/tracing"
	"github.com/dropDatabas3/devpulse/internal/security/tokens"
)

var (
	// ErrAuthExpired: la conexión no es recuperable sin reconectar.
	ErrAuthExpired = errors.New("provider authorization expired")
	// ErrNotConnected: el usuario no conectó el proveedor.
	ErrNotConnected = errors.New("provider not connected")
)

// Refresher es la parte del cliente OAuth que usa el guard.
type Refresher interface {
	ExchangeRefreshToken(ctx context.Context, kind types.ProviderKind, refreshToken string) (types.TokenBundle, error)
}

// Config del guard. Ceros toman los defaults.
type Config struct {
	SafetyMargin   time.Duration
	RefreshTimeout time.Duration
	// LeaseTTL/LeaseWait aplican solo con cache compartido.
	LeaseTTL  time.Duration
	LeaseWait time.Duration
}

func (c *Config) defaults() {
	if c.SafetyMargin <= 0 {
		c.SafetyMargin = DefaultSafetyMargin
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = 15 * time.Second
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 30 * time.Second
	}
	if c.LeaseWait <= 0 {
		c.LeaseWait = 5 * time.Second
	}
}

// Token es el resultado de Acquire.
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresAt   *time.Time
	Refreshed   bool
	// Connection es la conexión vigente luego de la evaluación (perfil, cloud id).
	Connection *repository.Connection
}

// Guard coordina evaluación, refresh y persistencia.
type Guard struct {
	conns  repository.ConnectionRepository
	oauth  Refresher
	leases cache.Client
	cfg    Config
	now    func() time.Time
	sf     singleflight.Group

	pollInterval time.Duration
}

// New crea un guard. leases puede ser nil (solo single-flight in-process).
func New(conns repository.ConnectionRepository, r Refresher, leases cache.Client, cfg Config) *Guard {
	cfg.defaults()
	return &Guard{
		conns:        conns,
		oauth:        r,
		leases:       leases,
		cfg:          cfg,
		now:          time.Now,
		pollInterval: 100 * time.Millisecond,
	}
}

// Evaluate clasifica c con el margen configurado.
func (g *Guard) Evaluate(c *repository.Connection) State {
	return Evaluate(c, g.now(), g.cfg.SafetyMargin)
}

// Acquire devuelve un access token utilizable para (uid, kind).
//
// Errores: ErrNotConnected, ErrAuthExpired, oauth.ErrProviderUnavailable o el
// error de contexto del llamador. Cancelar ctx deja de esperar pero no cancela
// un refresh en curso.
func (g *Guard) Acquire(ctx context.Context, uid string, kind types.ProviderKind) (*Token, error) {
	log := logger.From(ctx).With(logger.Component("guard"), logger.UserID(uid), logger.Provider(string(kind)))

	conn, err := g.conns.Get(ctx, uid, kind)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNotConnected
		}
		return nil, err
	}

	state := g.Evaluate(conn)
	metrics.TokenEvaluations.WithLabelValues(string(kind), state.String()).Inc()
	log.Debug("token evaluated", logger.TokenState(state.String()), logger.TokenPreview(types.Preview(conn.AccessToken)))

	switch state {
	case Fresh:
		return tokenOf(conn, false), nil
	case Unrecoverable:
		return nil, ErrAuthExpired
	}

	ch := g.sf.DoChan(uid+":"+string(kind), func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.RefreshTimeout)
		defer cancel()
		return g.refresh(rctx, log, uid, kind)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			metrics.TokenRefreshes.WithLabelValues(string(kind), "shared").Inc()
		}
		// cada llamador recibe su copia
		c := *res.Val.(*repository.Connection)
		return tokenOf(&c, true), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *Guard) refresh(ctx context.Context, log *zap.Logger, uid string, kind types.ProviderKind) (_ *repository.Connection, err error) {
	ctx, span := tracing.Start(ctx, "guard.refresh", tracing.Provider(string(kind)), tracing.UserID(uid))
	defer func() { tracing.End(span, err) }()

	release, fresh, err := g.lease(ctx, log, uid, kind)
	if err != nil || fresh != nil {
		return fresh, err
	}
	defer release()

	// Releer dentro del lease: otro proceso pudo haber rotado recién.
	conn, err := g.conns.Get(ctx, uid, kind)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNotConnected
		}
		return nil, err
	}
	switch g.Evaluate(conn) {
	case Fresh:
		return conn, nil
	case Unrecoverable:
		return nil, ErrAuthExpired
	}

	b, err := g.oauth.ExchangeRefreshToken(ctx, kind, conn.RefreshToken)
	if err != nil {
		return nil, g.refreshFailed(ctx, log, uid, kind, err)
	}

	upd := repository.ApplyBundle(conn, b, g.now())
	if err := g.conns.UpdateTokens(ctx, uid, kind, upd); err != nil {
		switch {
		case repository.IsNotFound(err):
			// desconectado mientras refrescábamos
			return nil, ErrNotConnected
		case errors.Is(err, repository.ErrPreconditionFailed):
			log.Warn("refresh token rotated concurrently; using stored token")
			return g.reread(ctx, uid, kind)
		}
		return nil, err
	}
	upd.Apply(conn)

	metrics.TokenRefreshes.WithLabelValues(string(kind), "ok").Inc()
	audit.Log(ctx, audit.Refreshed, uid, kind,
		logger.TokenPreview(types.Preview(conn.AccessToken)),
		logger.Bool("rotated", b.RefreshToken != ""),
	)
	return conn, nil
}

func (g *Guard) refreshFailed(ctx context.Context, log *zap.Logger, uid string, kind types.ProviderKind, err error) error {
	if oauth.IsAuthoritativeRejection(err) {
		metrics.TokenRefreshes.WithLabelValues(string(kind), "rejected").Inc()
		log.Warn("refresh rejected by provider; connection needs reconnect", logger.Err(err))
		if merr := g.conns.MarkNeedsReconnect(ctx, uid, kind, truncate(err.Error(), 255)); merr != nil && !repository.IsNotFound(merr) {
			log.Error("mark needs_reconnect failed", logger.Err(merr))
		} else if merr == nil {
			audit.Log(ctx, audit.NeedsReconnect, uid, kind, logger.Err(err))
		}
		return fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}
	metrics.TokenRefreshes.WithLabelValues(string(kind), "unavailable").Inc()
	log.Warn("refresh failed; connection kept", logger.Err(err))
	if errors.Is(err, oauth.ErrProviderUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", oauth.ErrProviderUnavailable, err)
}

// lease toma el marcador compartido. Si otro proceso lo tiene, espera a que el
// token almacenado quede fresco y lo devuelve en fresh.
func (g *Guard) lease(ctx context.Context, log *zap.Logger, uid string, kind types.ProviderKind) (release func(), fresh *repository.Connection, err error) {
	noop := func() {}
	if g.leases == nil {
		return noop, nil, nil
	}
	key := "guard:lease:" + uid + ":" + string(kind)
	owner, err := tokens.GenerateOpaqueToken(16)
	if err != nil {
		return nil, nil, err
	}
	ok, err := g.leases.SetNX(ctx, key, owner, g.cfg.LeaseTTL)
	if err != nil {
		// cache caído: degradar a single-flight local
		log.Warn("refresh lease unavailable", logger.Err(err))
		return noop, nil, nil
	}
	if ok {
		return func() {
			if v, err := g.leases.Get(ctx, key); err == nil && v == owner {
				_ = g.leases.Delete(ctx, key)
			}
		}, nil, nil
	}

	deadline := time.NewTimer(g.cfg.LeaseWait)
	defer deadline.Stop()
	tick := time.NewTicker(g.pollInterval)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			conn, err := g.conns.Get(ctx, uid, kind)
			if err != nil {
				if repository.IsNotFound(err) {
					return nil, nil, ErrNotConnected
				}
				continue
			}
			switch g.Evaluate(conn) {
			case Fresh:
				metrics.TokenRefreshes.WithLabelValues(string(kind), "shared").Inc()
				return nil, conn, nil
			case Unrecoverable:
				return nil, nil, ErrAuthExpired
			}
		case <-deadline.C:
			return nil, nil, fmt.Errorf("%w: refresh in progress elsewhere", oauth.ErrProviderUnavailable)
		case <-ctx.Done():
			return nil, nil, fmt.Errorf("%w: %v", oauth.ErrProviderUnavailable, ctx.Err())
		}
	}
}

func (g *Guard) reread(ctx context.Context, uid string, kind types.ProviderKind) (*repository.Connection, error) {
	conn, err := g.conns.Get(ctx, uid, kind)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNotConnected
		}
		return nil, err
	}
	switch g.Evaluate(conn) {
	case Fresh:
		return conn, nil
	case Unrecoverable:
		return nil, ErrAuthExpired
	}
	return nil, fmt.Errorf("%w: concurrent refresh did not persist", oauth.ErrProviderUnavailable)
}

func tokenOf(c *repository.Connection, refreshed bool) *Token {
	return &Token{
		AccessToken: c.AccessToken,
		TokenType:   c.TokenType,
		ExpiresAt:   c.ExpiresAt,
		Refreshed:   refreshed,
		Connection:  c,
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
