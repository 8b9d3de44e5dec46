// Package helpers contiene utilidades compartidas por controllers y middlewares.
package helpers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/devpulse/internal/domain/types"
)

// ProviderParam lee {provider} de la ruta. Acepta "GitHub" o "JIRA".
func ProviderParam(r *http.Request) (types.ProviderKind, error) {
	return types.ParseProviderKind(strings.TrimSpace(chi.URLParam(r, "provider")))
}

// ReconnectPath es la ruta de conexión que se sugiere tras AUTH_FAILED.
func ReconnectPath(kind types.ProviderKind) string { return "/auth/" + string(kind) }
