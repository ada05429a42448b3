package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

// RequestID crea un campo para el ID del request.
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field {
	return zap.String("method", v)
}

// Path crea un campo para el path del request.
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// Duration crea un campo para la duración de una operación.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - IDENTIDAD
// =================================================================================

// PrincipalID crea un campo para el principal autenticado de la sesión.
func PrincipalID(v string) zap.Field {
	return zap.String("principal_id", v)
}

// AccountID crea un campo para el account id ("kind:sourceId") de una persona.
func AccountID(v string) zap.Field {
	return zap.String("account_id", v)
}

// ActorID crea un campo para el actor id durable.
func ActorID(v string) zap.Field {
	return zap.String("actor_id", v)
}

// VportID crea un campo para el id de un vport.
func VportID(v string) zap.Field {
	return zap.String("vport_id", v)
}

// Kind crea un campo para el tipo de persona (citizen | vport).
func Kind(v string) zap.Field {
	return zap.String("kind", v)
}

// Epoch crea un campo para el switch epoch.
func Epoch(v uint64) zap.Field {
	return zap.Uint64("epoch", v)
}

// Phase crea un campo para la fase del state machine.
func Phase(v string) zap.Field {
	return zap.String("phase", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Layer crea un campo para la capa (handler, service, adapter).
func Layer(v string) zap.Field {
	return zap.String("layer", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// Count crea un campo para un conteo.
func Count(v int) zap.Field {
	return zap.Int("count", v)
}

// Key crea un campo genérico para una clave de cache.
func Key(v string) zap.Field {
	return zap.String("key", v)
}

// String crea un campo string genérico.
func String(key, v string) zap.Field {
	return zap.String(key, v)
}

// Bool crea un campo bool genérico.
func Bool(key string, v bool) zap.Field {
	return zap.Bool(key, v)
}
