// Package account contiene los endpoints de cuenta y sesión.
package account

import (
	"net/http"

	"github.com/dropDatabas3/devpulse/internal/http/errors"
	"github.com/dropDatabas3/devpulse/internal/http/helpers"
	mw "github.com/dropDatabas3/devpulse/internal/http/middlewares"
	svc "github.com/dropDatabas3/devpulse/internal/http/services/account"
	"github.com/dropDatabas3/devpulse/internal/observability/logger"
	"github.com/dropDatabas3/devpulse/internal/sessionbridge"
)

type Controller struct {
	service svc.Service
	cookie  helpers.CookieConfig
}

func NewController(s svc.Service, cookie helpers.CookieConfig) *Controller {
	return &Controller{service: s, cookie: cookie}
}

type successResponse struct {
	Success bool                       `json:"success"`
	Session *sessionbridge.SessionView `json:"session,omitempty"`
}

// Me maneja GET /api/me.
func (c *Controller) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := mw.GetIdentity(r.Context())
	if !ok {
		errors.WriteError(w, errors.ErrUnauthorized)
		return
	}
	me, err := c.service.Me(r.Context(), id)
	if err != nil {
		logger.From(r.Context()).Error("load user", logger.Op("AccountController.Me"), logger.Err(err))
		errors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, me)
}

// Disconnect maneja POST /auth/disconnect/{provider}. Es idempotente.
func (c *Controller) Disconnect(w http.ResponseWriter, r *http.Request) {
	uid := mw.GetUserID(r.Context())
	if uid == "" {
		errors.WriteError(w, errors.ErrUnauthorized)
		return
	}
	kind, err := helpers.ProviderParam(r)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	if err := c.service.Disconnect(r.Context(), uid, helpers.CookieValue(r, c.cookie.Name), kind); err != nil {
		errors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, successResponse{Success: true})
}

// Restore maneja POST /auth/restore: reconstruye la sesión y setea la cookie.
func (c *Controller) Restore(w http.ResponseWriter, r *http.Request) {
	uid := mw.GetUserID(r.Context())
	if uid == "" {
		errors.WriteError(w, errors.ErrUnauthorized)
		return
	}
	view, sid, err := c.service.Restore(r.Context(), uid, helpers.CookieValue(r, c.cookie.Name))
	if err != nil {
		logger.From(r.Context()).Warn("session restore failed", logger.Err(err))
		errors.WriteError(w, errors.ErrServiceUnavailable.WithCause(err))
		return
	}
	http.SetCookie(w, helpers.BuildCookie(c.cookie, sid))
	helpers.WriteJSON(w, http.StatusOK, successResponse{Success: true, Session: view})
}

// Logout maneja GET|POST /auth/logout. Siempre responde success.
func (c *Controller) Logout(w http.ResponseWriter, r *http.Request) {
	if sid := helpers.CookieValue(r, c.cookie.Name); sid != "" {
		if err := c.service.Logout(r.Context(), sid); err != nil {
			logger.From(r.Context()).Warn("session clear failed", logger.Err(err))
		}
	}
	http.SetCookie(w, helpers.BuildDeletionCookie(c.cookie))
	helpers.WriteJSON(w, http.StatusOK, successResponse{Success: true})
}

type providerUserResponse struct {
	UID string `json:"uid"`
	sessionbridge.ProviderView
}

// ProviderUser maneja GET /auth/{provider}/user: perfil conectado, resuelto por
// bearer o, si no hay, por la cookie de sesión.
func (c *Controller) ProviderUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind, err := helpers.ProviderParam(r)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	var view *sessionbridge.SessionView
	if id, ok := mw.GetIdentity(ctx); ok {
		view, err = c.service.View(ctx, id.UID)
	} else {
		view, err = c.service.Session(ctx, helpers.CookieValue(r, c.cookie.Name))
	}
	if err != nil {
		errors.WriteError(w, errors.ErrUnauthorized.WithCause(err))
		return
	}

	p, ok := view.Provider(kind)
	if !ok {
		errors.WriteError(w, errors.ErrProviderNotConnected)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, providerUserResponse{UID: view.UID, ProviderView: *p})
}
