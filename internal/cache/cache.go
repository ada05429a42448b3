// Package cache provee el almacenamiento clave/valor detrás del PersistentCache.
//
// Soporta:
//   - memory (in-process, go-cache; tests y fallback)
//   - file (un archivo por key, escrito de forma atómica; sobrevive reinicios)
//   - redis (compartido, para agentes que corren en varios hosts)
//
// El cache es una optimización: nunca es fuente de verdad sobre el estado en memoria.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Client define las operaciones de cache.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda un valor con TTL opcional. Si ttl es 0, no expira.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete elimina una key. Borrar una key inexistente no es error.
	Delete(ctx context.Context, key string) error

	// Ping verifica que el backend responde.
	Ping(ctx context.Context) error

	// Close libera los recursos del backend.
	Close() error
}

// Config configuración para crear un cliente de cache.
type Config struct {
	Driver   string // "memory" | "file" | "redis"
	Dir      string // sólo file
	Addr     string // sólo redis (host:port)
	Password string
	DB       int
	Prefix   string // Prefijo para todas las keys
}

// ErrNotFound indica que la key no existe (o expiró).
var ErrNotFound = errors.New("cache: key not found")

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// New crea un cliente de cache según la configuración.
func New(cfg Config) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "memory", "":
		return NewMemory(cfg.Prefix), nil
	case "file":
		return NewFile(cfg.Dir, cfg.Prefix)
	case "redis":
		return NewRedis(cfg)
	default:
		return nil, fmt.Errorf("cache: unsupported driver %q", cfg.Driver)
	}
}

func prefixed(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + ":" + k
}
