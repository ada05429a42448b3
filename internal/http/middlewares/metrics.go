package middlewares

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/persona/internal/metrics"
)

// WithMetrics instrumenta requests con contadores, latencia e inflight. El
// label path es el patrón de ruta de chi para no explotar la cardinalidad.
func WithMetrics() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			method := strings.ToUpper(r.Method)
			metrics.HTTPInflight.Inc()
			start := time.Now()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			defer func() {
				metrics.HTTPInflight.Dec()
				path := routePattern(r)
				metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
				metrics.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
			}()

			next.ServeHTTP(rec, r)
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
