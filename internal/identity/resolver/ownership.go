package resolver

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/persona/internal/identity"
	"github.com/dropDatabas3/persona/internal/metrics"
	"github.com/dropDatabas3/persona/internal/observability/logger"
)

// OwnerOf resuelve qué principal controla el actor:
// tabla directa → dueño embebido en el actor → dueño registrado del vport.
// Un error en una fuente se loguea y cuenta como vacío; si las tres quedan
// vacías devuelve identity.ErrUnresolvableOwnership.
func (r *Resolver) OwnerOf(ctx context.Context, actorID string) (string, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("identity.resolver"),
		logger.Op("OwnerOf"),
		logger.ActorID(actorID),
	)
	if actorID == "" {
		metrics.OwnershipResolutions.WithLabelValues("none").Inc()
		return "", fmt.Errorf("%w: empty actor id", identity.ErrUnresolvableOwnership)
	}

	if r.deps.Ownership != nil {
		owner, err := r.deps.Ownership.OwnerOfActor(ctx, actorID)
		if err != nil {
			log.Warn("direct ownership lookup failed", logger.Err(err))
		} else if owner != "" {
			metrics.OwnershipResolutions.WithLabelValues("direct").Inc()
			return owner, nil
		}
	}

	var rec identity.ActorRecord
	if r.deps.Actors != nil {
		var err error
		rec, err = r.deps.Actors.ActorRecord(ctx, actorID)
		if err != nil {
			log.Warn("actor record lookup failed", logger.Err(err))
		} else if rec.Kind == identity.KindCitizen && rec.PrincipalID != "" {
			metrics.OwnershipResolutions.WithLabelValues("embedded").Inc()
			return rec.PrincipalID, nil
		}
	}

	if r.deps.Vports != nil && rec.Kind == identity.KindVport && rec.VportID != "" {
		owner, err := r.deps.Vports.OwnerOfVport(ctx, rec.VportID)
		if err != nil {
			log.Warn("vport owner lookup failed", logger.VportID(rec.VportID), logger.Err(err))
		} else if owner != "" {
			metrics.OwnershipResolutions.WithLabelValues("vport").Inc()
			return owner, nil
		}
	}

	metrics.OwnershipResolutions.WithLabelValues("none").Inc()
	log.Info("ownership unresolvable")
	return "", fmt.Errorf("%w: actor %s", identity.ErrUnresolvableOwnership, actorID)
}

// Authorize devuelve nil sólo si el actor pertenece al principal. Ownership
// irresoluble es una denegación, nunca un permiso implícito.
func (r *Resolver) Authorize(ctx context.Context, actorID, principalID string) error {
	owner, err := r.OwnerOf(ctx, actorID)
	if err != nil {
		return fmt.Errorf("%w: %w", identity.ErrForbidden, err)
	}
	if principalID == "" || owner != principalID {
		return fmt.Errorf("%w: actor %s is not controlled by principal", identity.ErrForbidden, actorID)
	}
	return nil
}
