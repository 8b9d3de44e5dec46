// Package router arma el árbol de rutas chi del servicio.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	accountctrl "github.com/dropDatabas3/devpulse/internal/http/controllers/account"
	connectctrl "github.com/dropDatabas3/devpulse/internal/http/controllers/connect"
	healthctrl "github.com/dropDatabas3/devpulse/internal/http/controllers/health"
	providerctrl "github.com/dropDatabas3/devpulse/internal/http/controllers/provider"
	"github.com/dropDatabas3/devpulse/internal/http/errors"
	mw "github.com/dropDatabas3/devpulse/internal/http/middlewares"
	"github.com/dropDatabas3/devpulse/internal/identity"
	"github.com/dropDatabas3/devpulse/internal/rate"
)

// Deps contiene todo lo que el router necesita.
type Deps struct {
	Verifier identity.Verifier

	Connect  *connectctrl.Controller
	Account  *accountctrl.Controller
	Provider *providerctrl.Controller
	Health   *healthctrl.Controller

	// Metrics es el handler de Prometheus; nil lo deshabilita.
	Metrics      http.Handler
	MetricsRoute string

	// RateLimiter aplica a inicio y callback OAuth; nil lo deshabilita.
	RateLimiter rate.Limiter
	RateLimit   int
	// ClientIP resuelve la IP del cliente; nil ignora X-Forwarded-For.
	ClientIP *mw.ClientIP

	CORSOrigins []string
}

// New devuelve el handler raíz.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(d.ClientIP),
		mw.WithMetrics(),
		mw.WithCORS(d.CORSOrigins),
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		errors.WriteError(w, errors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		errors.WriteError(w, errors.ErrMethodNotAllowed)
	})

	// ops
	r.Get("/", d.Health.Root)
	r.Get("/healthz", d.Health.Healthz)
	r.Get("/readyz", d.Health.Readyz)
	if d.Metrics != nil {
		route := d.MetricsRoute
		if route == "" {
			route = "/metrics"
		}
		r.Handle(route, d.Metrics)
	}

	requireID := mw.RequireIdentity(d.Verifier)
	oauthRoutes := func(r chi.Router) {
		r.Use(mw.WithRateLimit(d.RateLimiter, d.RateLimit, d.ClientIP))
		r.Get("/{provider}", d.Connect.Connect)
		r.Get("/{provider}/callback", d.Connect.Callback)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Use(mw.WithNoStore())
		r.Group(oauthRoutes)

		r.With(requireID).Post("/disconnect/{provider}", d.Account.Disconnect)
		r.With(requireID).Post("/restore", d.Account.Restore)
		r.Get("/logout", d.Account.Logout)
		r.Post("/logout", d.Account.Logout)
		r.With(mw.OptionalIdentity(d.Verifier)).Get("/{provider}/user", d.Account.ProviderUser)
	})
	r.Route("/connect", func(r chi.Router) {
		r.Use(mw.WithNoStore())
		r.Group(oauthRoutes)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(mw.WithNoStore(), requireID)

		r.Get("/me", d.Account.Me)
		r.Get("/user", d.Account.Me)

		r.Route("/github", func(r chi.Router) {
			r.Get("/user", d.Provider.GitHubUser)
			r.Get("/repos", d.Provider.GitHubRepos)
			r.Get("/issues", d.Provider.GitHubIssues)
		})
		r.Route("/jira", func(r chi.Router) {
			r.Get("/user", d.Provider.JiraUser)
			r.Get("/projects", d.Provider.JiraProjects)
			r.Get("/issues", d.Provider.JiraIssues)
			r.Get("/user-stories", d.Provider.JiraUserStories)
		})
	})

	return r
}
