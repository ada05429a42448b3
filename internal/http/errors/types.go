package errors

import (
	"fmt"
	"net/http"
)

// AppError define la estructura estándar para errores de la API del agente.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"` // No se serializa, usado para el header
	Err        error  `json:"-"` // Causa original, sólo para logs
}

// Error implementa la interfaz error
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap permite acceder al error original
func (e *AppError) Unwrap() error {
	return e.Err
}

// New crea un nuevo AppError
func New(status int, code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: status,
	}
}

// WithDetail devuelve una COPIA con detalle, sin mutar las variables base.
func (e *AppError) WithDetail(detail string) *AppError {
	newErr := *e
	newErr.Detail = detail
	return &newErr
}

// WithCause devuelve una COPIA con la causa original.
func (e *AppError) WithCause(err error) *AppError {
	newErr := *e
	newErr.Err = err
	return &newErr
}

// =================================================================================
// LISTA DE ERRORES PREDEFINIDOS
// =================================================================================

var (
	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "La solicitud contiene sintaxis inválida o parámetros faltantes.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidJSON = &AppError{
		Code:       "INVALID_JSON",
		Message:    "El cuerpo de la solicitud no es un JSON válido.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrMissingFields = &AppError{
		Code:       "MISSING_FIELDS",
		Message:    "Faltan campos requeridos en la solicitud.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidAccount = &AppError{
		Code:       "INVALID_ACCOUNT",
		Message:    "El account id o la persona son inválidos.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrTokenMissing = &AppError{
		Code:       "TOKEN_MISSING",
		Message:    "Falta el token de autenticación.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenInvalid = &AppError{
		Code:       "TOKEN_INVALID",
		Message:    "El token de autenticación es inválido o expiró.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrNoSession = &AppError{
		Code:       "NO_SESSION",
		Message:    "No hay una sesión activa.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "El principal no controla este actor.",
		HTTPStatus: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "El recurso no existe.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrInvalidSwitchTarget = &AppError{
		Code:       "INVALID_SWITCH_TARGET",
		Message:    "La persona no pertenece al principal.",
		HTTPStatus: http.StatusUnprocessableEntity,
	}

	ErrUnresolvable = &AppError{
		Code:       "UNRESOLVABLE_OWNERSHIP",
		Message:    "No se pudo determinar el dueño del actor.",
		HTTPStatus: http.StatusForbidden,
	}

	ErrUpstream = &AppError{
		Code:       "UPSTREAM_UNAVAILABLE",
		Message:    "Un servicio externo no respondió. Se mantiene la identidad anterior.",
		HTTPStatus: http.StatusServiceUnavailable,
	}

	ErrInternalServerError = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "Ocurrió un error inesperado.",
		HTTPStatus: http.StatusInternalServerError,
	}
)
