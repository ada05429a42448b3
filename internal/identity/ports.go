package identity

import "context"

// DirectoryService lista las personas de un principal.
type DirectoryService interface {
	ListPersonas(ctx context.Context, principalID string) (PersonaList, error)
}

// ActorRegistry resuelve (o crea) actor ids durables.
type ActorRegistry interface {
	// ResolveActorForPrincipal devuelve "" si el principal todavía no tiene actor.
	ResolveActorForPrincipal(ctx context.Context, principalID string) (string, error)
	CreateActorForPrincipal(ctx context.Context, principalID string) (string, error)
	// ResolveOrCreateActorForVport es idempotente.
	ResolveOrCreateActorForVport(ctx context.Context, vportID string) (string, error)
}

// OwnershipLookup es la tabla directa actor → principal dueño.
// Devuelve "" si no hay fila.
type OwnershipLookup interface {
	OwnerOfActor(ctx context.Context, actorID string) (string, error)
}

// ActorDirectory expone el registro de un actor con su dueño embebido.
type ActorDirectory interface {
	ActorRecord(ctx context.Context, actorID string) (ActorRecord, error)
}

// VportOwners devuelve el dueño registrado de un vport ("" si no hay).
type VportOwners interface {
	OwnerOfVport(ctx context.Context, vportID string) (string, error)
}

// NavigationHint informa qué vport está mirando el usuario. Es sólo un desempate.
type NavigationHint func() (vportID string, ok bool)
