// Package router arma el router chi de la API del agente.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/persona/internal/http/errors"
	"github.com/dropDatabas3/persona/internal/http/handlers"
	mw "github.com/dropDatabas3/persona/internal/http/middlewares"
)

// Deps contiene las dependencias del router.
type Deps struct {
	Identity *handlers.IdentityHandler
	Auth     mw.AuthConfig

	// Health y Metrics son opcionales.
	Health  http.Handler
	Metrics http.Handler
}

// New devuelve el handler raíz.
//
//	GET  /healthz, /metrics         sin auth
//	/v1/...                         Bearer (o X-User-ID en dev)
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		mw.WithRequestID(),
		mw.WithRecover(),
		mw.WithLogging(),
		mw.WithMetrics(),
	)

	if d.Health != nil {
		r.Method(http.MethodGet, "/healthz", d.Health)
	}
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.WithAuth(d.Auth))
		d.Identity.Register(r)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteError(w, r, errors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteError(w, r, errors.New(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Método no permitido."))
	})
	return r
}
