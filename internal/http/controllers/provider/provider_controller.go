// Package provider contiene los endpoints de lectura /api/github/* y /api/jira/*.
package provider

import (
	"net/http"
	"strconv"

	"github.com/dropDatabas3/devpulse/internal/domain/types"
	httperrors "github.com/dropDatabas3/devpulse/internal/http/errors"
	"github.com/dropDatabas3/devpulse/internal/http/helpers"
	mw "github.com/dropDatabas3/devpulse/internal/http/middlewares"
	svc "github.com/dropDatabas3/devpulse/internal/http/services/provider"
	"github.com/dropDatabas3/devpulse/internal/observability/logger"
)

type Controller struct {
	service svc.Service
}

func NewController(s svc.Service) *Controller {
	return &Controller{service: s}
}

func (c *Controller) GitHubUser(w http.ResponseWriter, r *http.Request) {
	uid, ok := c.uid(w, r)
	if !ok {
		return
	}
	u, err := c.service.GitHubUser(r.Context(), uid)
	c.respond(w, r, types.ProviderGitHub, u, err)
}

func (c *Controller) GitHubRepos(w http.ResponseWriter, r *http.Request) {
	uid, ok := c.uid(w, r)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	repos, err := c.service.GitHubRepos(r.Context(), uid, page)
	c.respond(w, r, types.ProviderGitHub, repos, err)
}

// GitHubIssues maneja GET /api/github/issues?owner=&repo=&state=.
func (c *Controller) GitHubIssues(w http.ResponseWriter, r *http.Request) {
	uid, ok := c.uid(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	if q.Get("owner") == "" || q.Get("repo") == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("owner and repo are required"))
		return
	}
	issues, err := c.service.GitHubIssues(r.Context(), uid, q.Get("owner"), q.Get("repo"), q.Get("state"))
	c.respond(w, r, types.ProviderGitHub, issues, err)
}

func (c *Controller) JiraUser(w http.ResponseWriter, r *http.Request) {
	uid, ok := c.uid(w, r)
	if !ok {
		return
	}
	me, err := c.service.JiraUser(r.Context(), uid)
	c.respond(w, r, types.ProviderJira, me, err)
}

func (c *Controller) JiraProjects(w http.ResponseWriter, r *http.Request) {
	uid, ok := c.uid(w, r)
	if !ok {
		return
	}
	projects, err := c.service.JiraProjects(r.Context(), uid)
	c.respond(w, r, types.ProviderJira, projects, err)
}

// JiraIssues maneja GET /api/jira/issues?project=&jql=.
func (c *Controller) JiraIssues(w http.ResponseWriter, r *http.Request) {
	uid, ok := c.uid(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	issues, err := c.service.JiraIssues(r.Context(), uid, q.Get("project"), q.Get("jql"))
	c.respond(w, r, types.ProviderJira, issues, err)
}

func (c *Controller) JiraUserStories(w http.ResponseWriter, r *http.Request) {
	uid, ok := c.uid(w, r)
	if !ok {
		return
	}
	stories, err := c.service.JiraUserStories(r.Context(), uid, r.URL.Query().Get("project"))
	c.respond(w, r, types.ProviderJira, stories, err)
}

func (c *Controller) uid(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid := mw.GetUserID(r.Context())
	if uid == "" {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return "", false
	}
	return uid, true
}

// respond escribe v o mapea err. AUTH_FAILED lleva la ruta de reconexión.
func (c *Controller) respond(w http.ResponseWriter, r *http.Request, kind types.ProviderKind, v any, err error) {
	if err == nil {
		helpers.WriteJSON(w, http.StatusOK, v)
		return
	}
	appErr := httperrors.FromError(err)
	if appErr.Code == httperrors.ErrAuthFailed.Code || appErr.Code == httperrors.ErrProviderNotConnected.Code {
		appErr = appErr.WithReconnect(helpers.ReconnectPath(kind))
	}
	log := logger.From(r.Context()).With(logger.Provider(string(kind)), logger.Err(err))
	switch {
	case appErr.HTTPStatus >= http.StatusInternalServerError:
		log.Warn("provider read failed")
	default:
		log.Debug("provider read rejected", logger.String("code", appErr.Code))
	}
	httperrors.WriteError(w, appErr)
}
