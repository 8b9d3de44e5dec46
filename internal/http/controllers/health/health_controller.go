// Package health contiene el controller para health checks.
package health

import (
	"net/http"

	"github.com/dropDatabas3/devpulse/internal/http/helpers"
	svc "github.com/dropDatabas3/devpulse/internal/http/services/health"
	"github.com/dropDatabas3/devpulse/internal/observability/logger"
)

type Controller struct {
	service svc.Service
	version string
}

func NewController(s svc.Service, version string) *Controller {
	return &Controller{service: s, version: version}
}

// Root maneja GET /.
func (c *Controller) Root(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to the DevPulse API",
		"version": c.version,
	})
}

// Healthz es liveness: no toca dependencias.
func (c *Controller) Healthz(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz maneja GET /readyz
func (c *Controller) Readyz(w http.ResponseWriter, r *http.Request) {
	resp := c.service.Check(r.Context())
	status := http.StatusOK
	if resp.Status != "ready" {
		status = http.StatusServiceUnavailable
		logger.From(r.Context()).Warn("readiness check failed", logger.Any("components", resp.Components))
	}
	if resp.Version != "" {
		w.Header().Set("X-Service-Version", resp.Version)
	}
	helpers.WriteJSON(w, status, resp)
}
