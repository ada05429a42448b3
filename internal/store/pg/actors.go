package pg

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dropDatabas3/persona/internal/observability/logger"
)

// ResolveActorForPrincipal implementa identity.ActorRegistry. Devuelve "" si
// el principal todavía no tiene actor.
func (s *Store) ResolveActorForPrincipal(ctx context.Context, principalID string) (string, error) {
	if !validID(principalID) {
		return "", fmt.Errorf("%w: principal %q", ErrInvalidID, principalID)
	}
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id::text FROM actors WHERE profile_id = $1`, principalID,
	).Scan(&id)
	if noRows(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// CreateActorForPrincipal crea (o devuelve, si ya existe) el actor citizen del
// principal y registra su ownership directo.
func (s *Store) CreateActorForPrincipal(ctx context.Context, principalID string) (string, error) {
	if !validID(principalID) {
		return "", fmt.Errorf("%w: principal %q", ErrInvalidID, principalID)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	// el perfil puede no existir todavía (primer login)
	if _, err := tx.Exec(ctx,
		`INSERT INTO profiles (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, principalID,
	); err != nil {
		return "", fmt.Errorf("create actor: profile: %w", err)
	}

	var actorID string
	err = tx.QueryRow(ctx, `
		INSERT INTO actors (id, kind, profile_id) VALUES ($1, 'citizen', $2)
		ON CONFLICT (profile_id) DO UPDATE SET profile_id = EXCLUDED.profile_id
		RETURNING id::text`,
		uuid.NewString(), principalID,
	).Scan(&actorID)
	if err != nil {
		return "", fmt.Errorf("create actor: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO actor_owners (actor_id, profile_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		actorID, principalID,
	); err != nil {
		return "", fmt.Errorf("create actor: owner: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	s.log(ctx, "CreateActorForPrincipal").Info("citizen actor ready",
		logger.PrincipalID(principalID), logger.ActorID(actorID))
	return actorID, nil
}

// ResolveOrCreateActorForVport es idempotente: devuelve el actor del vport,
// creándolo si hace falta, y copia el owner del vport a actor_owners.
func (s *Store) ResolveOrCreateActorForVport(ctx context.Context, vportID string) (string, error) {
	if !validID(vportID) {
		return "", fmt.Errorf("%w: vport %q", ErrInvalidID, vportID)
	}

	var actorID string
	err := s.pool.QueryRow(ctx,
		`SELECT id::text FROM actors WHERE vport_id = $1`, vportID,
	).Scan(&actorID)
	if err == nil {
		return actorID, nil
	}
	if !noRows(err) {
		return "", err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO actors (id, kind, vport_id) VALUES ($1, 'vport', $2)
		ON CONFLICT (vport_id) DO UPDATE SET vport_id = EXCLUDED.vport_id
		RETURNING id::text`,
		uuid.NewString(), vportID,
	).Scan(&actorID)
	if err != nil {
		return "", fmt.Errorf("create vport actor: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO actor_owners (actor_id, profile_id)
		SELECT $1, profile_id FROM vport_members WHERE vport_id = $2 AND role = 'owner'
		ON CONFLICT DO NOTHING`,
		actorID, vportID,
	); err != nil {
		return "", fmt.Errorf("create vport actor: owner: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	s.log(ctx, "ResolveOrCreateActorForVport").Info("vport actor ready",
		logger.VportID(vportID), logger.ActorID(actorID))
	return actorID, nil
}
