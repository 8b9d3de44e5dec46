// Package config carga la configuración: YAML opcional → defaults → variables de
// entorno (caarlos0/env) → Validate.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/devpulse/internal/validation"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env      string `yaml:"env" env:"APP_ENV"`
		LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr" env:"SERVER_ADDR"`
		// Port sobreescribe Addr (compat con PORT de plataformas tipo Heroku/Render).
		Port int `yaml:"-" env:"PORT"`
		// PublicBaseURL es la URL pública del backend; se usa para armar los redirect URIs.
		PublicBaseURL string `yaml:"public_base_url" env:"PUBLIC_BASE_URL"`
		// FrontendURL es el "home" al que vuelve el callback exitoso.
		FrontendURL        string        `yaml:"frontend_url" env:"FRONTEND_URL"`
		CORSAllowedOrigins []string      `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
		// TrustedProxies: IPs/CIDRs cuyo X-Forwarded-For se respeta. Vacío lo ignora.
		TrustedProxies []string `yaml:"trusted_proxies" env:"TRUSTED_PROXIES" envSeparator:","`
		ReadTimeout        time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
		WriteTimeout       time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
		ShutdownTimeout    time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
	} `yaml:"server"`

	Storage struct {
		Driver       string `yaml:"driver" env:"STORAGE_DRIVER"` // memory | postgres | sqlite
		DSN          string `yaml:"dsn" env:"STORAGE_DSN"`
		MaxOpenConns int    `yaml:"max_open_conns" env:"STORAGE_MAX_OPEN_CONNS"`
		MaxIdleConns int    `yaml:"max_idle_conns" env:"STORAGE_MAX_IDLE_CONNS"`
	} `yaml:"storage"`

	Cache struct {
		Driver   string `yaml:"driver" env:"CACHE_DRIVER"` // memory | redis
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB"`
		Prefix   string `yaml:"prefix" env:"CACHE_PREFIX"`
	} `yaml:"cache"`

	Identity struct {
		// firebase | hmac
		Mode       string `yaml:"mode" env:"IDENTITY_MODE"`
		ProjectID  string `yaml:"project_id" env:"FIREBASE_PROJECT_ID"`
		CertsURL   string `yaml:"certs_url" env:"FIREBASE_CERTS_URL"`
		HMACSecret string `yaml:"hmac_secret" env:"IDENTITY_HMAC_SECRET"`
		Issuer     string `yaml:"issuer" env:"IDENTITY_ISSUER"`
		Audience   string `yaml:"audience" env:"IDENTITY_AUDIENCE"`
	} `yaml:"identity"`

	Providers struct {
		// OutboundTimeout aplica a token endpoints y APIs de proveedores.
		OutboundTimeout time.Duration `yaml:"outbound_timeout" env:"PROVIDER_OUTBOUND_TIMEOUT"`
		GitHub          Provider      `yaml:"github" envPrefix:"GITHUB_"`
		Jira            Provider      `yaml:"jira" envPrefix:"JIRA_"`
	} `yaml:"providers"`

	Guard struct {
		SafetyMargin   time.Duration `yaml:"safety_margin" env:"GUARD_SAFETY_MARGIN"`
		RefreshTimeout time.Duration `yaml:"refresh_timeout" env:"GUARD_REFRESH_TIMEOUT"`
		LeaseTTL       time.Duration `yaml:"lease_ttl" env:"GUARD_LEASE_TTL"`
		LeaseWait      time.Duration `yaml:"lease_wait" env:"GUARD_LEASE_WAIT"`
	} `yaml:"guard"`

	Correlation struct {
		// server_state (default) | identity_token (compat)
		Mode string        `yaml:"mode" env:"CORRELATION_MODE"`
		TTL  time.Duration `yaml:"ttl" env:"CORRELATION_TTL"`
	} `yaml:"correlation"`

	Session struct {
		CookieName string        `yaml:"cookie_name" env:"SESSION_COOKIE_NAME"`
		TTL        time.Duration `yaml:"ttl" env:"SESSION_TTL"`
		Secure     bool          `yaml:"secure" env:"SESSION_SECURE"`
		Domain     string        `yaml:"domain" env:"SESSION_DOMAIN"`
	} `yaml:"session"`

	Security struct {
		// Base64 o hex de 32 bytes. Vacío = tokens en claro (solo dev).
		SecretboxMasterKey string `yaml:"secretbox_master_key" env:"SECRETBOX_MASTER_KEY"`
	} `yaml:"security"`

	Rate struct {
		Enabled     bool          `yaml:"enabled" env:"RATE_ENABLED"`
		MaxRequests int           `yaml:"max_requests" env:"RATE_MAX_REQUESTS"`
		Window      time.Duration `yaml:"window" env:"RATE_WINDOW"`
	} `yaml:"rate"`

	Telemetry struct {
		Enabled      bool    `yaml:"enabled" env:"OTEL_ENABLED"`
		Endpoint     string  `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
		Insecure     bool    `yaml:"insecure" env:"OTEL_EXPORTER_OTLP_INSECURE"`
		ServiceName  string  `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
		SampleRatio  float64 `yaml:"sample_ratio" env:"OTEL_TRACES_SAMPLER_RATIO"`
		MetricsRoute string  `yaml:"metrics_route" env:"METRICS_ROUTE"`
	} `yaml:"telemetry"`
}

// Provider configura un proveedor OAuth. Las URLs vacías usan los endpoints públicos.
type Provider struct {
	ClientID     string   `yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret string   `yaml:"client_secret" env:"CLIENT_SECRET"`
	RedirectURL  string   `yaml:"redirect_url" env:"REDIRECT_URL"`
	Scopes       []string `yaml:"scopes" env:"SCOPES" envSeparator:","`
	AuthURL      string   `yaml:"auth_url" env:"AUTH_URL"`
	TokenURL     string   `yaml:"token_url" env:"TOKEN_URL"`
	APIBaseURL   string   `yaml:"api_base_url" env:"API_BASE_URL"`
}

// Enabled reporta si hay credenciales para el proveedor.
func (p Provider) Enabled() bool { return p.ClientID != "" && p.ClientSecret != "" }

// Load lee path (si no está vacío), aplica defaults y overrides de entorno.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}
	c.applyDefaults()
	return &c, c.Validate()
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Port > 0 {
		c.Server.Addr = fmt.Sprintf(":%d", c.Server.Port)
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":5000"
	}
	if c.Server.PublicBaseURL == "" {
		c.Server.PublicBaseURL = "http://localhost" + c.Server.Addr
	}
	c.Server.PublicBaseURL = strings.TrimRight(c.Server.PublicBaseURL, "/")
	if c.Server.FrontendURL == "" {
		c.Server.FrontendURL = "http://localhost:3000"
	}
	if len(c.Server.CORSAllowedOrigins) == 0 {
		c.Server.CORSAllowedOrigins = []string{c.Server.FrontendURL}
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "devpulse"
	}
	if c.Identity.Mode == "" {
		c.Identity.Mode = "firebase"
	}
	if c.Providers.OutboundTimeout == 0 {
		c.Providers.OutboundTimeout = 10 * time.Second
	}
	if c.Providers.GitHub.RedirectURL == "" {
		c.Providers.GitHub.RedirectURL = c.Server.PublicBaseURL + "/auth/github/callback"
	}
	if len(c.Providers.GitHub.Scopes) == 0 {
		c.Providers.GitHub.Scopes = []string{"user:email", "repo"}
	}
	if c.Providers.Jira.RedirectURL == "" {
		c.Providers.Jira.RedirectURL = c.Server.PublicBaseURL + "/auth/jira/callback"
	}
	if len(c.Providers.Jira.Scopes) == 0 {
		c.Providers.Jira.Scopes = []string{"offline_access", "read:jira-user", "read:jira-work"}
	}
	if c.Guard.SafetyMargin == 0 {
		c.Guard.SafetyMargin = 300 * time.Second
	}
	if c.Guard.RefreshTimeout == 0 {
		c.Guard.RefreshTimeout = 15 * time.Second
	}
	if c.Guard.LeaseTTL == 0 {
		c.Guard.LeaseTTL = 30 * time.Second
	}
	if c.Guard.LeaseWait == 0 {
		c.Guard.LeaseWait = 5 * time.Second
	}
	if c.Correlation.Mode == "" {
		c.Correlation.Mode = "server_state"
	}
	if c.Correlation.TTL == 0 {
		c.Correlation.TTL = 10 * time.Minute
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "devpulse_session"
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 24 * time.Hour
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 30
	}
	if c.Rate.Window == 0 {
		c.Rate.Window = time.Minute
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "devpulse"
	}
	if c.Telemetry.SampleRatio == 0 {
		c.Telemetry.SampleRatio = 1
	}
	if c.Telemetry.MetricsRoute == "" {
		c.Telemetry.MetricsRoute = "/metrics"
	}
}

// Validate revisa valores críticos. Acumula todos los problemas en un solo error.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "memory":
	case "postgres", "sqlite":
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required for driver %q", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q not supported", c.Storage.Driver))
	}
	switch c.Cache.Driver {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("cache.driver %q not supported", c.Cache.Driver))
	}
	switch c.Identity.Mode {
	case "firebase":
		if c.Identity.ProjectID == "" {
			errs = append(errs, errors.New("identity.project_id (FIREBASE_PROJECT_ID) is required in firebase mode"))
		}
	case "hmac":
		if len(c.Identity.HMACSecret) < 32 {
			errs = append(errs, errors.New("identity.hmac_secret must be at least 32 bytes"))
		}
	default:
		errs = append(errs, fmt.Errorf("identity.mode %q not supported", c.Identity.Mode))
	}
	switch c.Correlation.Mode {
	case "server_state", "identity_token":
	default:
		errs = append(errs, fmt.Errorf("correlation.mode %q not supported", c.Correlation.Mode))
	}
	if err := validation.Scopes(c.Providers.GitHub.Scopes); err != nil {
		errs = append(errs, fmt.Errorf("providers.github.scopes: %w", err))
	}
	if err := validation.Scopes(c.Providers.Jira.Scopes); err != nil {
		errs = append(errs, fmt.Errorf("providers.jira.scopes: %w", err))
	}
	if c.Guard.SafetyMargin < 0 {
		errs = append(errs, errors.New("guard.safety_margin must be >= 0"))
	}
	if c.App.Env == "prod" && c.Security.SecretboxMasterKey == "" {
		errs = append(errs, errors.New("security.secretbox_master_key (SECRETBOX_MASTER_KEY) is required in prod"))
	}
	return errors.Join(errs...)
}
