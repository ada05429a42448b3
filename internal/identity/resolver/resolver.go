// Package resolver produce actor ids para personas y resuelve el dueño de un actor.
package resolver

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/persona/internal/identity"
	"github.com/dropDatabas3/persona/internal/metrics"
	"github.com/dropDatabas3/persona/internal/observability/logger"
)

// Deps contiene las dependencias del resolver.
// Las tres fuentes de ownership son opcionales: una fuente nil cuenta como vacía.
type Deps struct {
	Registry  identity.ActorRegistry
	Ownership identity.OwnershipLookup
	Actors    identity.ActorDirectory
	Vports    identity.VportOwners

	// CallTimeout acota la ronda compartida contra el registry. 0 = 30s.
	CallTimeout time.Duration
}

const defaultCallTimeout = 30 * time.Second

// Resolver envuelve el Actor Registry con cache de resultados y la cadena de fallback.
type Resolver struct {
	deps    Deps
	results *gocache.Cache
	sf      singleflight.Group
}

// New crea un Resolver.
func New(deps Deps) *Resolver {
	return &Resolver{
		deps:    deps,
		results: gocache.New(gocache.NoExpiration, 0),
	}
}

func (r *Resolver) callTimeout() time.Duration {
	if r.deps.CallTimeout > 0 {
		return r.deps.CallTimeout
	}
	return defaultCallTimeout
}

func resultKey(principalID string, acc identity.AccountID) string {
	return principalID + "|" + acc.String()
}

// Reset olvida todos los resultados cacheados (cambio de principal).
func (r *Resolver) Reset() {
	r.results.Flush()
}

// Remember agrega un mapping conocido (p. ej. reportado por otro subsistema).
func (r *Resolver) Remember(principalID string, acc identity.AccountID, actorID string) {
	if actorID == "" {
		return
	}
	r.results.Set(resultKey(principalID, acc), actorID, gocache.NoExpiration)
}

// Resolve devuelve el actor id de la persona. Los errores del registry se
// devuelven envueltos en identity.ErrTransientResolution.
func (r *Resolver) Resolve(ctx context.Context, principalID string, p identity.Persona) (string, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("identity.resolver"),
		logger.Op("Resolve"),
		logger.AccountID(p.AccountID.String()),
	)

	if p.CachedActorID != "" {
		metrics.ActorResolutions.WithLabelValues(string(p.Kind), "persona").Inc()
		return p.CachedActorID, nil
	}
	k := resultKey(principalID, p.AccountID)
	if v, ok := r.results.Get(k); ok {
		metrics.ActorResolutions.WithLabelValues(string(p.Kind), "cache").Inc()
		return v.(string), nil
	}

	// La ronda la comparten todos los que piden la misma key: corre con su
	// propio timeout y sin la cancelación de quien la inició. Cada caller
	// espera sólo mientras su propio ctx siga vivo.
	ch := r.sf.DoChan(k, func() (any, error) {
		if v, ok := r.results.Get(k); ok {
			return v.(string), nil
		}
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.callTimeout())
		defer cancel()
		actorID, source, err := r.fromRegistry(sctx, principalID, p)
		if err != nil {
			return "", err
		}
		metrics.ActorResolutions.WithLabelValues(string(p.Kind), source).Inc()
		r.results.Set(k, actorID, gocache.NoExpiration)
		return actorID, nil
	})

	var (
		v   any
		err error
	)
	select {
	case res := <-ch:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		err = fmt.Errorf("%w: %v", identity.ErrTransientResolution, ctx.Err())
	}
	if err != nil {
		metrics.ActorResolutions.WithLabelValues(string(p.Kind), "error").Inc()
		log.Warn("actor resolution failed", logger.Err(err))
		return "", err
	}
	actorID := v.(string)
	log.Debug("actor resolved", logger.ActorID(actorID))
	return actorID, nil
}

func (r *Resolver) fromRegistry(ctx context.Context, principalID string, p identity.Persona) (string, string, error) {
	if r.deps.Registry == nil {
		return "", "", fmt.Errorf("%w: no actor registry configured", identity.ErrTransientResolution)
	}

	switch p.Kind {
	case identity.KindCitizen:
		actorID, err := r.deps.Registry.ResolveActorForPrincipal(ctx, principalID)
		if err != nil {
			return "", "", fmt.Errorf("%w: resolve actor for principal: %v", identity.ErrTransientResolution, err)
		}
		if actorID != "" {
			return actorID, "registry", nil
		}

		// primer login: el principal todavía no tiene actor
		created, err := r.deps.Registry.CreateActorForPrincipal(ctx, principalID)
		if err != nil {
			return "", "", fmt.Errorf("%w: create actor for principal: %v", identity.ErrTransientResolution, err)
		}
		actorID, err = r.deps.Registry.ResolveActorForPrincipal(ctx, principalID)
		if err != nil {
			return "", "", fmt.Errorf("%w: re-resolve actor for principal: %v", identity.ErrTransientResolution, err)
		}
		if actorID == "" {
			actorID = created
		}
		if actorID == "" {
			return "", "", fmt.Errorf("%w: registry returned no actor for principal", identity.ErrTransientResolution)
		}
		return actorID, "created", nil

	case identity.KindVport:
		actorID, err := r.deps.Registry.ResolveOrCreateActorForVport(ctx, p.SourceID)
		if err != nil {
			return "", "", fmt.Errorf("%w: resolve actor for vport: %v", identity.ErrTransientResolution, err)
		}
		if actorID == "" {
			return "", "", fmt.Errorf("%w: registry returned no actor for vport", identity.ErrTransientResolution)
		}
		return actorID, "registry", nil

	default:
		return "", "", fmt.Errorf("%w: %q", identity.ErrUnknownKind, p.Kind)
	}
}
