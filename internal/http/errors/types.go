package errors

import (
	"fmt"
	"net/http"
)

// AppError es el error estándar de la capa HTTP.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // causa original, solo para logs
	// Reconnect es la ruta para volver a conectar el proveedor (AUTH_FAILED).
	Reconnect string `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// New crea un nuevo AppError
func New(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// WithDetail devuelve una COPIA con detalle.
func (e *AppError) WithDetail(detail string) *AppError {
	n := *e
	n.Detail = detail
	return &n
}

// WithCause devuelve una COPIA con la causa.
func (e *AppError) WithCause(err error) *AppError {
	n := *e
	n.Err = err
	return &n
}

// WithReconnect devuelve una COPIA con la URL de reconexión.
func (e *AppError) WithReconnect(path string) *AppError {
	n := *e
	n.Reconnect = path
	return &n
}

// ---- 400 ----

var (
	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "La solicitud contiene sintaxis inválida o parámetros faltantes.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrMissingFields = &AppError{
		Code:       "MISSING_FIELDS",
		Message:    "Faltan campos requeridos en la solicitud.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrUnknownProvider = &AppError{
		Code:       "UNKNOWN_PROVIDER",
		Message:    "El proveedor solicitado no está soportado.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrProviderNotConnected = &AppError{
		Code:       "PROVIDER_NOT_CONNECTED",
		Message:    "El proveedor no está conectado para este usuario.",
		HTTPStatus: http.StatusBadRequest,
	}
)

// ---- 401 ----

var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Sesión inválida o expirada. Volvé a iniciar sesión.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenMissing = &AppError{
		Code:       "TOKEN_MISSING",
		Message:    "No se proporcionó token de autenticación.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrCorrelationFailed = &AppError{
		Code:       "CORRELATION_FAILED",
		Message:    "No se pudo vincular la autorización con tu cuenta. Volvé a intentar la conexión.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrProviderDenied = &AppError{
		Code:       "PROVIDER_DENIED",
		Message:    "La autorización fue cancelada o rechazada en el proveedor.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrExchangeFailed = &AppError{
		Code:       "EXCHANGE_FAILED",
		Message:    "El proveedor rechazó el código de autorización.",
		HTTPStatus: http.StatusUnauthorized,
	}

	// ErrAuthFailed: credenciales del proveedor vencidas o revocadas; reconectar.
	ErrAuthFailed = &AppError{
		Code:       "AUTH_FAILED",
		Message:    "La conexión con el proveedor expiró o fue revocada. Volvé a conectarlo.",
		HTTPStatus: http.StatusUnauthorized,
	}
)

// ---- 403 / 404 / 405 / 429 ----

var (
	ErrInsufficientPermissions = &AppError{
		Code:       "INSUFFICIENT_PERMISSIONS",
		Message:    "El token del proveedor no tiene permisos para este recurso.",
		HTTPStatus: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "El recurso solicitado no fue encontrado.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrMethodNotAllowed = &AppError{
		Code:       "METHOD_NOT_ALLOWED",
		Message:    "El método HTTP no está permitido para este recurso.",
		HTTPStatus: http.StatusMethodNotAllowed,
	}

	ErrTooManyRequests = &AppError{
		Code:       "TOO_MANY_REQUESTS",
		Message:    "Demasiadas solicitudes. Intentá de nuevo más tarde.",
		HTTPStatus: http.StatusTooManyRequests,
	}
)

// ---- 5xx ----

var (
	ErrInternalServerError = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Ocurrió un error inesperado en el servidor.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrProviderUnavailable = &AppError{
		Code:       "PROVIDER_UNAVAILABLE",
		Message:    "El proveedor no responde. Intentá de nuevo en unos segundos.",
		HTTPStatus: http.StatusBadGateway,
	}

	ErrProviderNotConfigured = &AppError{
		Code:       "PROVIDER_NOT_CONFIGURED",
		Message:    "El proveedor no está habilitado en este servidor.",
		HTTPStatus: http.StatusServiceUnavailable,
	}

	ErrServiceUnavailable = &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    "El servicio no está disponible temporalmente.",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)
