// Package logger provides a singleton Zap logger with context-based scoping.
//
// # Design Decisions
//
//   - Singleton: una sola instancia global inicializada con Init() en el composition root.
//   - Context Scoping: cada operación del state machine puede llevar su propio logger
//     "scoped" (principal_id, account_id, epoch) sin crear un nuevo core.
//   - Environments: "dev" usa consola con colores, "prod" usa JSON.
//   - Levels: debug, info, warn, error (configurable via PERSONA_LOG_LEVEL).
//
// # Usage
//
// Inicialización (una vez en main.go):
//
//	logger.Init(logger.Config{
//	    Env:   cfg.Log.Env,   // "dev" o "prod"
//	    Level: cfg.Log.Level, // "debug", "info", "warn", "error"
//	})
//	defer logger.Sync()
//
// En componentes (con contexto):
//
//	log := logger.From(ctx).With(logger.Component("identity.machine"), logger.Op("SwitchAccount"))
//	log.Info("identity committed", logger.AccountID(id), logger.Epoch(e))
package logger
