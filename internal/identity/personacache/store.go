// Package personacache guarda, por principal, el último estado conocido de la
// identidad: lista de personas, mapa persona→actor y selector de persona activa.
//
// Es una optimización, no una fuente de verdad: Load nunca falla y las
// escrituras son best-effort (los errores se loguean y se descartan).
package personacache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dropDatabas3/persona/internal/cache"
	"github.com/dropDatabas3/persona/internal/identity"
	"github.com/dropDatabas3/persona/internal/metrics"
	"github.com/dropDatabas3/persona/internal/observability/logger"
)

// SchemaVersion es la versión del envelope persistido. Un registro con otra
// versión se ignora (se trata como vacío).
const SchemaVersion = 1

const (
	recAccounts = "accounts"
	recActors   = "actors"
	recActive   = "active"
)

// Snapshot es el contenido de los tres registros de un principal.
type Snapshot struct {
	Accounts []identity.Persona
	// Actors mapea account id → actor id. Nunca contiene valores vacíos.
	Actors map[identity.AccountID]string
	Active identity.AccountID
}

// Empty indica si no hay nada cacheado.
func (s Snapshot) Empty() bool {
	return len(s.Accounts) == 0 && len(s.Actors) == 0 && s.Active == ""
}

type envelope struct {
	V    int             `json:"v"`
	Data json.RawMessage `json:"data"`
}

// Store es el PersistentCache sobre un cache.Client.
type Store struct {
	c cache.Client
}

// New crea el store.
func New(c cache.Client) *Store {
	return &Store{c: c}
}

func key(principalID, rec string) string {
	return "persona:" + principalID + ":" + rec
}

// Load devuelve lo último guardado para el principal o valores vacíos.
func (s *Store) Load(ctx context.Context, principalID string) Snapshot {
	log := logger.From(ctx).With(
		logger.Layer("cache"),
		logger.Component("identity.personacache"),
		logger.Op("Load"),
		logger.PrincipalID(principalID),
	)

	out := Snapshot{Actors: map[identity.AccountID]string{}}
	if principalID == "" {
		return out
	}

	var accounts []identity.Persona
	if err := s.read(ctx, principalID, recAccounts, &accounts); err != nil {
		log.Warn("ignoring cached persona list", logger.Err(err))
	} else {
		for _, p := range accounts {
			np, err := p.Normalize()
			if err != nil {
				log.Warn("dropping invalid cached persona", logger.AccountID(p.AccountID.String()), logger.Err(err))
				continue
			}
			out.Accounts = append(out.Accounts, np)
		}
	}

	var actors map[identity.AccountID]string
	if err := s.read(ctx, principalID, recActors, &actors); err != nil {
		log.Warn("ignoring cached actor map", logger.Err(err))
	} else {
		for k, v := range actors {
			if v != "" {
				out.Actors[k] = v
			}
		}
	}

	var active identity.AccountID
	if err := s.read(ctx, principalID, recActive, &active); err != nil {
		log.Warn("ignoring cached active selector", logger.Err(err))
	} else {
		out.Active = active
	}

	log.Debug("cache loaded", logger.Count(len(out.Accounts)), logger.AccountID(out.Active.String()))
	return out
}

// read decodifica un registro. Un registro ausente no es error.
func (s *Store) read(ctx context.Context, principalID, rec string, dst any) error {
	raw, err := s.c.Get(ctx, key(principalID, rec))
	if cache.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.V != SchemaVersion {
		return fmt.Errorf("unsupported schema version %d", env.V)
	}
	if len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, dst)
}

func (s *Store) write(ctx context.Context, principalID, rec string, v any) {
	log := logger.From(ctx).With(
		logger.Layer("cache"),
		logger.Component("identity.personacache"),
		logger.Op("Save"),
		logger.PrincipalID(principalID),
		logger.String("record", rec),
	)
	if principalID == "" {
		return
	}

	data, err := json.Marshal(v)
	if err == nil {
		var b []byte
		b, err = json.Marshal(envelope{V: SchemaVersion, Data: data})
		if err == nil {
			err = s.c.Set(ctx, key(principalID, rec), string(b), 0)
		}
	}
	if err != nil {
		metrics.CacheWriteFailures.Inc()
		log.Warn("cache write failed (ignored)", logger.Err(err))
	}
}

// SaveAccounts guarda la lista de personas.
func (s *Store) SaveAccounts(ctx context.Context, principalID string, accounts []identity.Persona) {
	s.write(ctx, principalID, recAccounts, accounts)
}

// SaveActors guarda el mapa persona→actor (sin entradas vacías).
func (s *Store) SaveActors(ctx context.Context, principalID string, actors map[identity.AccountID]string) {
	clean := make(map[identity.AccountID]string, len(actors))
	for k, v := range actors {
		if v != "" {
			clean[k] = v
		}
	}
	s.write(ctx, principalID, recActors, clean)
}

// SaveActive guarda el selector de persona activa.
func (s *Store) SaveActive(ctx context.Context, principalID string, active identity.AccountID) {
	s.write(ctx, principalID, recActive, active)
}

// Save guarda los tres registros.
func (s *Store) Save(ctx context.Context, principalID string, snap Snapshot) {
	s.SaveAccounts(ctx, principalID, snap.Accounts)
	s.SaveActors(ctx, principalID, snap.Actors)
	s.SaveActive(ctx, principalID, snap.Active)
}

// Clear borra los tres registros del principal. Los errores se loguean;
// se intenta borrar todos aunque alguno falle.
func (s *Store) Clear(ctx context.Context, principalID string) {
	if principalID == "" {
		return
	}
	var errs []error
	for _, rec := range []string{recAccounts, recActors, recActive} {
		if err := s.c.Delete(ctx, key(principalID, rec)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		metrics.CacheWriteFailures.Inc()
		logger.From(ctx).Warn("cache clear failed (ignored)",
			logger.Component("identity.personacache"),
			logger.PrincipalID(principalID),
			logger.Err(err),
		)
	}
}
