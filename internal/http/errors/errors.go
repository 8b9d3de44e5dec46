// Package errors define los errores de la capa HTTP y su serialización JSON.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/dropDatabas3/devpulse/internal/correlator"
	"github.com/dropDatabas3/devpulse/internal/domain/repository"
	"github.com/dropDatabas3/devpulse/internal/domain/types"
	"github.com/dropDatabas3/devpulse/internal/guard"
	"github.com/dropDatabas3/devpulse/internal/identity"
	"github.com/dropDatabas3/devpulse/internal/oauth"
	"github.com/dropDatabas3/devpulse/internal/providerapi"
)

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	Reconnect string `json:"reconnect,omitempty"`
}

// WriteError escribe err como JSON. Errores que no son AppError pasan por FromDomain.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if appErr.HTTPStatus == http.StatusUnauthorized && appErr.Code != ErrAuthFailed.Code {
		w.Header().Set("WWW-Authenticate", `Bearer realm="devpulse"`)
	}
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Detail:    appErr.Detail,
		Reconnect: appErr.Reconnect,
	})
}

// FromError devuelve el AppError contenido en err o lo mapea desde el dominio.
func FromError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return FromDomain(err)
}

// FromDomain mapea los sentinels de dominio en un solo lugar.
func FromDomain(err error) *AppError {
	var denied *correlator.ProviderDeniedError
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, identity.ErrInvalidIdentity):
		return ErrUnauthorized.WithCause(err)
	case stderrors.Is(err, repository.ErrInvalidInput):
		return ErrBadRequest.WithCause(err).WithDetail(err.Error())
	case stderrors.Is(err, types.ErrUnknownProvider):
		return ErrUnknownProvider.WithCause(err)
	case stderrors.Is(err, oauth.ErrNotConfigured):
		return ErrProviderNotConfigured.WithCause(err)
	case stderrors.As(err, &denied):
		return ErrProviderDenied.WithCause(err).WithDetail(denied.Code)
	case stderrors.Is(err, correlator.ErrCorrelationFailed):
		return ErrCorrelationFailed.WithCause(err)
	case stderrors.Is(err, guard.ErrNotConnected):
		return ErrProviderNotConnected.WithCause(err)
	case stderrors.Is(err, guard.ErrAuthExpired),
		stderrors.Is(err, providerapi.ErrUnauthorized):
		return ErrAuthFailed.WithCause(err)
	case stderrors.Is(err, providerapi.ErrForbidden):
		return ErrInsufficientPermissions.WithCause(err)
	case stderrors.Is(err, providerapi.ErrNotFound):
		return ErrNotFound.WithCause(err)
	case stderrors.Is(err, oauth.ErrProviderUnavailable),
		stderrors.Is(err, providerapi.ErrUnavailable),
		stderrors.Is(err, providerapi.ErrInvalidResponse):
		return ErrProviderUnavailable.WithCause(err)
	case stderrors.Is(err, oauth.ErrExchangeFailed):
		return ErrExchangeFailed.WithCause(err)
	}
	return ErrInternalServerError.WithCause(err)
}
