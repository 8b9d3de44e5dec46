// Package connect contiene el controller del flujo OAuth: inicio y callback.
package connect

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/url"

	"github.com/dropDatabas3/devpulse/internal/correlator"
	"github.com/dropDatabas3/devpulse/internal/domain/types"
	"github.com/dropDatabas3/devpulse/internal/http/errors"
	"github.com/dropDatabas3/devpulse/internal/http/helpers"
	"github.com/dropDatabas3/devpulse/internal/http/views"
	"github.com/dropDatabas3/devpulse/internal/identity"
	"github.com/dropDatabas3/devpulse/internal/observability/logger"
	"github.com/dropDatabas3/devpulse/internal/sessionbridge"
)

// Correlator es lo que el controller usa del correlator.
type Correlator interface {
	Initiate(ctx context.Context, kind types.ProviderKind, identityToken string) (string, error)
	Complete(ctx context.Context, kind types.ProviderKind, p correlator.CallbackParams) (*correlator.Result, error)
}

// SessionRestorer espeja la sesión tras un callback exitoso.
type SessionRestorer interface {
	Restore(ctx context.Context, uid, sid string) (*sessionbridge.SessionView, string, error)
}

type Controller struct {
	corr     Correlator
	sessions SessionRestorer
	cookie   helpers.CookieConfig
	homeURL  string
}

func NewController(c Correlator, s SessionRestorer, cookie helpers.CookieConfig, homeURL string) *Controller {
	return &Controller{corr: c, sessions: s, cookie: cookie, homeURL: homeURL}
}

// Connect maneja GET /auth/{provider}?state=<identityToken>.
// El ID token también se acepta como bearer.
func (c *Controller) Connect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("ConnectController.Connect"))

	kind, err := helpers.ProviderParam(r)
	if err != nil {
		c.page(w, errors.ErrUnknownProvider)
		return
	}
	idToken := r.URL.Query().Get("state")
	if idToken == "" {
		idToken = identity.BearerToken(r.Header.Get("Authorization"))
	}
	if idToken == "" {
		c.page(w, errors.ErrTokenMissing)
		return
	}

	redirect, err := c.corr.Initiate(ctx, kind, idToken)
	if err != nil {
		log.Info("connect rejected", logger.Provider(string(kind)), logger.Err(err))
		c.page(w, errors.FromError(err))
		return
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

// Callback maneja GET /auth/{provider}/callback.
func (c *Controller) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("ConnectController.Callback"))

	kind, err := helpers.ProviderParam(r)
	if err != nil {
		c.page(w, errors.ErrUnknownProvider)
		return
	}
	q := r.URL.Query()
	res, err := c.corr.Complete(ctx, kind, correlator.CallbackParams{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	})
	if err != nil {
		appErr := errors.FromError(err)
		// todo lo que no sea indisponibilidad del proveedor se presenta como 401
		if appErr.HTTPStatus < http.StatusInternalServerError && appErr.HTTPStatus != http.StatusUnauthorized {
			appErr = errors.ErrCorrelationFailed.WithCause(err)
		}
		var denied *correlator.ProviderDeniedError
		if !stderrors.As(err, &denied) {
			log.Warn("oauth callback failed", logger.Provider(string(kind)), logger.Err(err))
		}
		c.page(w, appErr)
		return
	}

	if c.sessions != nil {
		sid := helpers.CookieValue(r, c.cookie.Name)
		if _, sid, err = c.sessions.Restore(ctx, res.UID, sid); err != nil {
			log.Warn("session mirror after callback failed", logger.Err(err))
		} else {
			http.SetCookie(w, helpers.BuildCookie(c.cookie, sid))
		}
	}
	http.Redirect(w, r, c.home(kind), http.StatusFound)
}

func (c *Controller) home(kind types.ProviderKind) string {
	u, err := url.Parse(c.homeURL)
	if err != nil || c.homeURL == "" {
		return "/"
	}
	q := u.Query()
	q.Set("connected", string(kind))
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Controller) page(w http.ResponseWriter, e *errors.AppError) {
	title := "No pudimos conectar tu cuenta"
	if e.HTTPStatus >= http.StatusInternalServerError {
		title = "El proveedor no está disponible"
	}
	views.WriteErrorPage(w, e.HTTPStatus, views.ErrorPage{
		Title:   title,
		Message: e.Message,
		Code:    e.Code,
		HomeURL: c.homeURL,
	})
}
