package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dropDatabas3/persona/internal/identity"
	"github.com/dropDatabas3/persona/internal/observability/logger"
)

// ErrInvalidID indica un id que no es un UUID.
var ErrInvalidID = errors.New("pg: invalid id")

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// ListPersonas implementa identity.DirectoryService: el perfil del principal
// (si existe) y los vports de los que es miembro, con el actor ya creado si lo hay.
func (s *Store) ListPersonas(ctx context.Context, principalID string) (identity.PersonaList, error) {
	if !validID(principalID) {
		return identity.PersonaList{}, fmt.Errorf("%w: principal %q", ErrInvalidID, principalID)
	}

	var out identity.PersonaList

	const qProfile = `
		SELECT p.display_name, p.avatar_url, COALESCE(a.id::text, '')
		FROM profiles p
		LEFT JOIN actors a ON a.profile_id = p.id
		WHERE p.id = $1
	`
	var name, avatar, actorID string
	err := s.pool.QueryRow(ctx, qProfile, principalID).Scan(&name, &avatar, &actorID)
	switch {
	case noRows(err):
		// sin perfil todavía: sólo vports
	case err != nil:
		return identity.PersonaList{}, fmt.Errorf("list personas: profile: %w", err)
	default:
		p := identity.NewPersona(identity.KindCitizen, principalID, name, avatar)
		p.CachedActorID = actorID
		out.Citizen = &p
	}

	const qVports = `
		SELECT v.id::text, v.name, v.avatar_url, COALESCE(a.id::text, '')
		FROM vport_members m
		JOIN vports v ON v.id = m.vport_id
		LEFT JOIN actors a ON a.vport_id = v.id
		WHERE m.profile_id = $1
		ORDER BY m.created_at, v.id
	`
	rows, err := s.pool.Query(ctx, qVports, principalID)
	if err != nil {
		return identity.PersonaList{}, fmt.Errorf("list personas: vports: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var vportID, vname, vavatar, vactor string
		if err := rows.Scan(&vportID, &vname, &vavatar, &vactor); err != nil {
			return identity.PersonaList{}, err
		}
		p := identity.NewPersona(identity.KindVport, vportID, vname, vavatar)
		p.CachedActorID = vactor
		out.Vports = append(out.Vports, p)
	}
	if err := rows.Err(); err != nil {
		return identity.PersonaList{}, err
	}

	s.log(ctx, "ListPersonas").Debug("personas listed",
		logger.PrincipalID(principalID),
		logger.Count(len(out.Vports)),
		logger.Bool("has_profile", out.Citizen != nil),
	)
	return out, nil
}
