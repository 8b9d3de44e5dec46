// Package server arma el handler HTTP con todas sus dependencias a partir de la
// configuración.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dropDatabas3/devpulse/internal/cache"
	"github.com/dropDatabas3/devpulse/internal/config"
	"github.com/dropDatabas3/devpulse/internal/correlator"
	"github.com/dropDatabas3/devpulse/internal/domain/repository"
	"github.com/dropDatabas3/devpulse/internal/domain/types"
	"github.com/dropDatabas3/devpulse/internal/guard"
	accountctrl "github.com/dropDatabas3/devpulse/internal/http/controllers/account"
	connectctrl "github.com/dropDatabas3/devpulse/internal/http/controllers/connect"
	healthctrl "github.com/dropDatabas3/devpulse/internal/http/controllers/health"
	providerctrl "github.com/dropDatabas3/devpulse/internal/http/controllers/provider"
	"github.com/dropDatabas3/devpulse/internal/http/helpers"
	mw "github.com/dropDatabas3/devpulse/internal/http/middlewares"
	"github.com/dropDatabas3/devpulse/internal/http/router"
	accountsvc "github.com/dropDatabas3/devpulse/internal/http/services/account"
	healthsvc "github.com/dropDatabas3/devpulse/internal/http/services/health"
	providersvc "github.com/dropDatabas3/devpulse/internal/http/services/provider"
	"github.com/dropDatabas3/devpulse/internal/identity"
	"github.com/dropDatabas3/devpulse/internal/metrics"
	"github.com/dropDatabas3/devpulse/internal/oauth"
	"github.com/dropDatabas3/devpulse/internal/observability/logger"
	"github.com/dropDatabas3/devpulse/internal/providerapi"
	"github.com/dropDatabas3/devpulse/internal/rate"
	"github.com/dropDatabas3/devpulse/internal/security/secretbox"
	"github.com/dropDatabas3/devpulse/internal/sessionbridge"
	"github.com/dropDatabas3/devpulse/internal/store"
)

// tokenPurpose es el "purpose" HKDF de la subclave que cifra tokens OAuth.
const tokenPurpose = "devpulse/provider-tokens/v1"

// App agrupa el handler y las dependencias que el binario necesita fuera de HTTP.
type App struct {
	Handler  http.Handler
	Store    repository.Store
	Cache    cache.Client
	Verifier identity.Verifier
	OAuth    *oauth.Client
	Guard    *guard.Guard
}

// Build instancia store, cache, identidad, clientes de proveedores y controllers.
// El cleanup devuelto cierra store y cache.
func Build(ctx context.Context, cfg *config.Config, version string) (*App, func() error, error) {
	log := logger.L().With(logger.Component("wiring"))

	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	cc, err := cache.New(cache.Config{
		Driver:   cfg.Cache.Driver,
		Addr:     cfg.Cache.Addr,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
		Prefix:   cfg.Cache.Prefix,
	})
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("cache init failed: %w", err)
	}
	cleanup := func() error {
		return errors.Join(cc.Close(), st.Close())
	}

	oc := oauth.New(cfg.Providers.OutboundTimeout)
	enabled, err := registerProviders(oc, cfg)
	if err != nil {
		_ = cleanup()
		return nil, nil, err
	}
	if len(enabled) == 0 {
		log.Warn("no OAuth providers configured; connect endpoints will answer PROVIDER_NOT_CONFIGURED")
	}

	verifier, err := NewVerifier(cfg, oc.HTTPClient())
	if err != nil {
		_ = cleanup()
		return nil, nil, err
	}

	g := guard.New(st.Connections(), oc, cc, guard.Config{
		SafetyMargin:   cfg.Guard.SafetyMargin,
		RefreshTimeout: cfg.Guard.RefreshTimeout,
		LeaseTTL:       cfg.Guard.LeaseTTL,
		LeaseWait:      cfg.Guard.LeaseWait,
	})
	corr := correlator.New(verifier, oc, st, cc, correlator.Config{
		Mode: correlator.Mode(cfg.Correlation.Mode),
		TTL:  cfg.Correlation.TTL,
	})
	bridge := sessionbridge.New(st.Connections(), cc, cfg.Session.TTL)

	gh := providerapi.NewGitHub(cfg.Providers.GitHub.APIBaseURL, oc.HTTPClient())
	jira := providerapi.NewJira(cfg.Providers.Jira.APIBaseURL, oc.HTTPClient())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(reg); err != nil {
		_ = cleanup()
		return nil, nil, fmt.Errorf("metrics register: %w", err)
	}
	if err := mw.RegisterMetrics(reg); err != nil {
		_ = cleanup()
		return nil, nil, fmt.Errorf("metrics register: %w", err)
	}

	cookie := helpers.CookieConfig{
		Name:   cfg.Session.CookieName,
		Domain: cfg.Session.Domain,
		Secure: cfg.Session.Secure,
		TTL:    bridge.TTL(),
	}

	ips, err := mw.NewClientIP(cfg.Server.TrustedProxies)
	if err != nil {
		_ = cleanup()
		return nil, nil, err
	}

	account := accountsvc.NewService(st, bridge)
	deps := router.Deps{
		Verifier:     verifier,
		Connect:      connectctrl.NewController(corr, account, cookie, cfg.Server.FrontendURL),
		Account:      accountctrl.NewController(account, cookie),
		Provider:     providerctrl.NewController(providersvc.NewService(g, gh, jira)),
		Health:       healthctrl.NewController(healthsvc.NewService(version, enabled, map[string]healthsvc.Pinger{"store": st, "cache": cc}), version),
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		MetricsRoute: cfg.Telemetry.MetricsRoute,
		CORSOrigins:  cfg.Server.CORSAllowedOrigins,
		ClientIP:     ips,
	}
	if cfg.Rate.Enabled {
		deps.RateLimiter = newLimiter(cc, cfg)
		deps.RateLimit = cfg.Rate.MaxRequests
	}

	log.Info("wiring complete",
		logger.String("storage", cfg.Storage.Driver),
		logger.String("cache", cfg.Cache.Driver),
		logger.String("identity", cfg.Identity.Mode),
		logger.String("correlation", cfg.Correlation.Mode),
		zap.Strings("providers", enabled),
	)

	return &App{
		Handler:  router.New(deps),
		Store:    st,
		Cache:    cc,
		Verifier: verifier,
		OAuth:    oc,
		Guard:    g,
	}, cleanup, nil
}

// OpenStore abre el store configurado, cifrando tokens si hay master key.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	sc := store.Config{
		Driver:       cfg.Storage.Driver,
		DSN:          cfg.Storage.DSN,
		MaxOpenConns: cfg.Storage.MaxOpenConns,
		MaxIdleConns: cfg.Storage.MaxIdleConns,
	}
	if cfg.Security.SecretboxMasterKey != "" {
		key, err := secretbox.ParseKey(cfg.Security.SecretboxMasterKey)
		if err != nil {
			return nil, err
		}
		box, err := secretbox.New(key, tokenPurpose)
		if err != nil {
			return nil, err
		}
		sc.Box = box
	} else {
		logger.L().Warn("SECRETBOX_MASTER_KEY not set; provider tokens are stored in plaintext")
	}
	st, err := store.Open(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("store init failed: %w", err)
	}
	return st, nil
}

// NewVerifier construye el verificador de identidad según identity.mode.
func NewVerifier(cfg *config.Config, hc *http.Client) (identity.Verifier, error) {
	switch cfg.Identity.Mode {
	case "hmac":
		return identity.NewHMACVerifier([]byte(cfg.Identity.HMACSecret), cfg.Identity.Issuer, cfg.Identity.Audience), nil
	case "firebase", "":
		return identity.NewFirebaseVerifier(cfg.Identity.ProjectID, cfg.Identity.CertsURL, hc), nil
	default:
		return nil, fmt.Errorf("identity mode %q not supported", cfg.Identity.Mode)
	}
}

func registerProviders(oc *oauth.Client, cfg *config.Config) ([]string, error) {
	byKind := map[types.ProviderKind]config.Provider{
		types.ProviderGitHub: cfg.Providers.GitHub,
		types.ProviderJira:   cfg.Providers.Jira,
	}
	var enabled []string
	for _, kind := range types.ProviderKinds() {
		pc, ok := byKind[kind]
		if !ok || !pc.Enabled() {
			continue
		}
		err := oc.Register(kind, oauth.Options{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			RedirectURL:  pc.RedirectURL,
			Scopes:       pc.Scopes,
			AuthURL:      pc.AuthURL,
			TokenURL:     pc.TokenURL,
			APIBaseURL:   pc.APIBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", kind, err)
		}
		enabled = append(enabled, string(kind))
	}
	return enabled, nil
}

// newLimiter usa Redis si el cache es compartido; si no, un contador en memoria.
func newLimiter(cc cache.Client, cfg *config.Config) rate.Limiter {
	if rc, ok := cache.Redis(cc); ok {
		return rate.NewRedisLimiter(rc, cfg.Cache.Prefix+":rl:", cfg.Rate.MaxRequests, cfg.Rate.Window)
	}
	return rate.NewMemoryLimiter(cfg.Rate.MaxRequests, cfg.Rate.Window)
}
