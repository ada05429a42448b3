package pg

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/persona/internal/identity"
)

var (
	_ identity.DirectoryService = (*Store)(nil)
	_ identity.ActorRegistry    = (*Store)(nil)
	_ identity.OwnershipLookup  = (*Store)(nil)
	_ identity.ActorDirectory   = (*Store)(nil)
	_ identity.VportOwners      = (*Store)(nil)
)

// OwnerOfActor implementa identity.OwnershipLookup ("" si no hay fila).
func (s *Store) OwnerOfActor(ctx context.Context, actorID string) (string, error) {
	if !validID(actorID) {
		return "", nil
	}
	var owner string
	err := s.pool.QueryRow(ctx, `
		SELECT profile_id::text FROM actor_owners
		WHERE actor_id = $1
		ORDER BY created_at
		LIMIT 1`, actorID,
	).Scan(&owner)
	if noRows(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return owner, nil
}

// ActorRecord implementa identity.ActorDirectory.
func (s *Store) ActorRecord(ctx context.Context, actorID string) (identity.ActorRecord, error) {
	if !validID(actorID) {
		return identity.ActorRecord{}, fmt.Errorf("%w: actor %q", ErrNotFound, actorID)
	}
	var (
		kind               string
		profileID, vportID *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT kind, profile_id::text, vport_id::text FROM actors WHERE id = $1`, actorID,
	).Scan(&kind, &profileID, &vportID)
	if noRows(err) {
		return identity.ActorRecord{}, fmt.Errorf("%w: actor %s", ErrNotFound, actorID)
	}
	if err != nil {
		return identity.ActorRecord{}, err
	}

	rec := identity.ActorRecord{ActorID: actorID, Kind: identity.Kind(kind)}
	if profileID != nil {
		rec.PrincipalID = *profileID
	}
	if vportID != nil {
		rec.VportID = *vportID
	}
	return rec, nil
}

// OwnerOfVport implementa identity.VportOwners ("" si el vport no tiene owner).
func (s *Store) OwnerOfVport(ctx context.Context, vportID string) (string, error) {
	if !validID(vportID) {
		return "", nil
	}
	var owner string
	err := s.pool.QueryRow(ctx,
		`SELECT profile_id::text FROM vport_members WHERE vport_id = $1 AND role = 'owner'`, vportID,
	).Scan(&owner)
	if noRows(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return owner, nil
}
