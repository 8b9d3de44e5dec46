package repository

import "errors"

var (
	// ErrNotFound indica que el recurso solicitado no existe.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indica que los datos de entrada son inválidos.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPreconditionFailed indica que el estado cambió entre la lectura y la escritura
	// (ej: otro refresh ya rotó el refresh token).
	ErrPreconditionFailed = errors.New("precondition failed")
)

// IsNotFound verifica si el error es ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
