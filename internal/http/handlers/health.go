package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/persona/internal/http/errors"
	"github.com/dropDatabas3/persona/internal/observability/logger"
)

// Checker verifica una dependencia (pg, cache).
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// NewHealthHandler responde 200 si todas las dependencias responden.
func NewHealthHandler(m Machine, checks ...Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				logger.From(ctx).Warn("health check failed", logger.Component(c.Name), logger.Err(err))
				errors.WriteError(w, r, errors.New(http.StatusServiceUnavailable, "UNAVAILABLE", c.Name+" unavailable"))
				return
			}
		}
		resp := map[string]any{"status": "ok"}
		if m != nil {
			resp["phase"] = m.Status().Phase
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
