// Package errors define el formato de error de la API del agente y el mapeo
// desde los errores del núcleo de identidad.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/dropDatabas3/persona/internal/identity"
	"github.com/dropDatabas3/persona/internal/observability/logger"
)

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// FromError convierte cualquier error en un AppError. Los sentinels de
// identity tienen su propio código; el resto es un 500 que conserva la causa.
func FromError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	switch {
	case stderrors.Is(err, identity.ErrNoPrincipal):
		return ErrNoSession.WithCause(err)
	case identity.IsInvalidSwitchTarget(err):
		return ErrInvalidSwitchTarget.WithDetail(err.Error()).WithCause(err)
	case stderrors.Is(err, identity.ErrAccountNotFound):
		return ErrNotFound.WithDetail(err.Error()).WithCause(err)
	case stderrors.Is(err, identity.ErrInvalidAccountID), stderrors.Is(err, identity.ErrUnknownKind):
		return ErrInvalidAccount.WithDetail(err.Error()).WithCause(err)
	case identity.IsUnresolvableOwnership(err):
		return ErrUnresolvable.WithCause(err)
	case identity.IsForbidden(err):
		return ErrForbidden.WithCause(err)
	case identity.IsTransient(err):
		return ErrUpstream.WithCause(err)
	}
	return ErrInternalServerError.WithCause(err)
}

// WriteError escribe la respuesta JSON del error. Los 5xx se loguean con la causa.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := FromError(err)

	if appErr.HTTPStatus >= 500 && r != nil {
		logger.From(r.Context()).Error("request failed",
			logger.Layer("http"),
			logger.String("code", appErr.Code),
			logger.Err(appErr.Err),
		)
	}

	resp := errorResponse{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Detail:    appErr.Detail,
		RequestID: w.Header().Get("X-Request-ID"),
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(resp)
}
