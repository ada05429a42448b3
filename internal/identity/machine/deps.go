package machine

import (
	"context"
	"time"

	"github.com/dropDatabas3/persona/internal/identity"
	"github.com/dropDatabas3/persona/internal/identity/notifier"
	"github.com/dropDatabas3/persona/internal/identity/personacache"
)

// ActorResolver es lo que el state machine necesita del resolver.
type ActorResolver interface {
	Resolve(ctx context.Context, principalID string, p identity.Persona) (string, error)
	Remember(principalID string, acc identity.AccountID, actorID string)
	Reset()
}

// PersistentCache es lo que el state machine necesita del cache durable.
// Se llama con el lock del Machine tomado: las escrituras son best-effort y
// no deben bloquear más que un round-trip al backend.
type PersistentCache interface {
	Load(ctx context.Context, principalID string) personacache.Snapshot
	SaveAccounts(ctx context.Context, principalID string, accounts []identity.Persona)
	SaveActors(ctx context.Context, principalID string, actors map[identity.AccountID]string)
	SaveActive(ctx context.Context, principalID string, active identity.AccountID)
	Save(ctx context.Context, principalID string, snap personacache.Snapshot)
	Clear(ctx context.Context, principalID string)
}

// Deps contiene las dependencias del state machine.
type Deps struct {
	Directory identity.DirectoryService
	Resolver  ActorResolver
	Cache     PersistentCache
	// Notifier es opcional; si es nil se crea uno propio.
	Notifier *notifier.Notifier
	// Navigation es opcional; nil equivale a "no hay vport en pantalla".
	Navigation identity.NavigationHint
}

// NavigationPolicy decide cuánto pesa el hint de navegación al hidratar.
type NavigationPolicy string

const (
	// PolicyRouteUnlessOtherVport prefiere el vport de la ruta salvo que la
	// selección cacheada sea otro vport con actor ya resuelto.
	PolicyRouteUnlessOtherVport NavigationPolicy = "route_unless_other_vport"
	// PolicyRouteAlways prefiere el vport de la ruta siempre que sea propio.
	PolicyRouteAlways NavigationPolicy = "route_always"
	// PolicyStoredFirst sólo usa la ruta si no hay selección cacheada válida.
	PolicyStoredFirst NavigationPolicy = "stored_first"
	// PolicyIgnore nunca consulta el hint.
	PolicyIgnore NavigationPolicy = "ignore"
)

// ParseNavigationPolicy valida un nombre de política ("" = default).
func ParseNavigationPolicy(s string) (NavigationPolicy, bool) {
	switch p := NavigationPolicy(s); p {
	case "":
		return PolicyRouteUnlessOtherVport, true
	case PolicyRouteUnlessOtherVport, PolicyRouteAlways, PolicyStoredFirst, PolicyIgnore:
		return p, true
	default:
		return "", false
	}
}

// Config ajusta el comportamiento del state machine.
type Config struct {
	NavigationPolicy NavigationPolicy
	// ResolveTimeout acota cada resolución de actor. 0 = sin límite propio.
	ResolveTimeout time.Duration
}
