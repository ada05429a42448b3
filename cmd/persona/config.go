package main

import (
	"fmt"

	"github.com/dropDatabas3/persona/internal/config"
	"github.com/dropDatabas3/persona/internal/observability/logger"
)

// loadConfig lee el YAML (si hay) e inicializa el logger global.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		cfg = config.Default()
	} else if cfg, err = config.Load(path); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.LogEnv(),
		Level:       cfg.Log.Level,
		ServiceName: cfg.App.Name,
	})
	if path == "" {
		logger.S().Debugf("no config file, using defaults and PERSONA_* env (env=%s)", cfg.App.Env)
	} else {
		logger.S().Debugf("config loaded from %s (env=%s)", path, cfg.App.Env)
	}
	return cfg, nil
}
