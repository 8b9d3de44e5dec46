// Package providerapi contiene clientes de solo lectura para las APIs REST de
// GitHub y Jira Cloud. Las respuestas se decodifican en structs acotados con los
// campos que la app usa; nunca se reenvía el payload crudo del proveedor.
package providerapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/devpulse/internal/domain/types"
	"github.com/dropDatabas3/devpulse/internal/metrics"
	"github.com/dropDatabas3/devpulse/internal/observability/tracing"
)

var (
	// ErrUnauthorized: el proveedor rechazó el token (401).
	ErrUnauthorized = errors.New("provider rejected credentials")
	// ErrForbidden: token válido pero sin scopes/permisos (403). No se reintenta.
	ErrForbidden = errors.New("insufficient permissions")
	ErrNotFound  = errors.New("provider resource not found")
	// ErrUnavailable: 5xx, 429, timeout o error de red. Reintentable.
	ErrUnavailable = errors.New("provider unavailable")
	// ErrInvalidResponse: el payload no cumple con la forma esperada.
	ErrInvalidResponse = errors.New("invalid provider response")
)

// StatusError describe una respuesta no-2xx del proveedor.
type StatusError struct {
	Provider types.ProviderKind
	Op       string
	Status   int
	Message  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Provider, e.Op, e.Status, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.Status == http.StatusForbidden:
		return ErrForbidden
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status == http.StatusTooManyRequests || e.Status >= 500:
		return ErrUnavailable
	}
	return ErrInvalidResponse
}

const maxBody = 4 << 20

// client es el transporte compartido por GitHub y Jira.
type client struct {
	kind    types.ProviderKind
	baseURL string
	hc      *http.Client
	headers map[string]string
}

func newClient(kind types.ProviderKind, baseURL string, hc *http.Client, headers map[string]string) *client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &client{kind: kind, baseURL: strings.TrimRight(baseURL, "/"), hc: hc, headers: headers}
}

func (c *client) getJSON(ctx context.Context, op, path string, q url.Values, token string, out any) (err error) {
	ctx, span := tracing.Start(ctx, "providerapi."+op, tracing.Provider(string(c.kind)))
	start := time.Now()
	status := 0
	defer func() {
		metrics.ProviderCallDuration.WithLabelValues(string(c.kind), op, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
		tracing.End(span, err)
	}()

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, c.kind, op, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("%w: %s %s: read body: %v", ErrUnavailable, c.kind, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Provider: c.kind, Op: op, Status: resp.StatusCode, Message: errorMessage(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrInvalidResponse, c.kind, op, err)
	}
	return nil
}

// errorMessage extrae el mensaje de los formatos de error de GitHub y Jira.
func errorMessage(body []byte) string {
	var e struct {
		Message       string   `json:"message"`
		ErrorMessages []string `json:"errorMessages"`
	}
	if json.Unmarshal(body, &e) == nil {
		if e.Message != "" {
			return e.Message
		}
		if len(e.ErrorMessages) > 0 {
			return strings.Join(e.ErrorMessages, "; ")
		}
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return strings.TrimSpace(string(body))
}
