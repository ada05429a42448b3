package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas del core de identidad. Viven en un paquete aparte para que machine,
// resolver y notifier no se importen entre sí sólo para compartir colectores.

var (
	SwitchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "persona_switch_total",
		Help: "Resultados de switchAccount (committed, noop, stale, error, invalid)",
	}, []string{"result"})

	ActiveEpoch = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "persona_active_epoch",
		Help: "Switch epoch actual del state machine",
	})

	ActorResolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "persona_actor_resolutions_total",
		Help: "Resoluciones de actor id por kind y fuente (persona, cache, registry, created, error)",
	}, []string{"kind", "source"})

	OwnershipResolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "persona_ownership_resolutions_total",
		Help: "Resoluciones de ownership por fuente (direct, embedded, vport, none)",
	}, []string{"source"})

	IdentityTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "persona_identity_transitions_total",
		Help: "Transiciones de ActiveIdentity publicadas, por motivo",
	}, []string{"reason"})

	CacheWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "persona_cache_write_failures_total",
		Help: "Escrituras al cache durable que fallaron (se ignoran)",
	})
)

// Register registra las métricas en el registry dado (o el default si es nil).
// Registrar dos veces no es error.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		SwitchTotal,
		ActiveEpoch,
		ActorResolutions,
		OwnershipResolutions,
		IdentityTransitions,
		CacheWriteFailures,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		HTTPInflight,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
