package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/persona/internal/cache"
	"github.com/dropDatabas3/persona/internal/config"
	httpx "github.com/dropDatabas3/persona/internal/http"
	"github.com/dropDatabas3/persona/internal/http/handlers"
	mw "github.com/dropDatabas3/persona/internal/http/middlewares"
	"github.com/dropDatabas3/persona/internal/http/router"
	"github.com/dropDatabas3/persona/internal/identity"
	"github.com/dropDatabas3/persona/internal/identity/machine"
	"github.com/dropDatabas3/persona/internal/identity/notifier"
	"github.com/dropDatabas3/persona/internal/identity/personacache"
	"github.com/dropDatabas3/persona/internal/identity/resolver"
	"github.com/dropDatabas3/persona/internal/metrics"
	"github.com/dropDatabas3/persona/internal/observability/logger"
	"github.com/dropDatabas3/persona/internal/store/pg"
	"github.com/dropDatabas3/persona/internal/util"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Levanta la API HTTP del agente",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

// offlineDirectory se usa con storage.driver=none: el agente sólo puede
// servir lo que haya en el cache durable.
type offlineDirectory struct{}

func (offlineDirectory) ListPersonas(context.Context, string) (identity.PersonaList, error) {
	return identity.PersonaList{}, fmt.Errorf("%w: no directory configured", identity.ErrTransientResolution)
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.Named("serve").With(logger.Layer("cmd"))
	ctx = logger.ToContext(ctx, log)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	kv, err := cache.New(cache.Config{
		Driver:   cfg.Cache.Kind,
		Dir:      cfg.Cache.File.Dir,
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer kv.Close()

	checks := []handlers.Checker{{Name: "cache", Check: kv.Ping}}

	var (
		directory identity.DirectoryService = offlineDirectory{}
		resDeps   resolver.Deps
	)
	if cfg.Storage.Driver == "postgres" {
		store, err := pg.New(ctx, cfg.Storage.DSN, pg.PoolConfig{
			MaxConns:        cfg.Storage.Postgres.MaxOpenConns,
			MinConns:        cfg.Storage.Postgres.MinConns,
			ConnMaxLifetime: config.Dur(cfg.Storage.Postgres.ConnMaxLifetime),
		})
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer store.Close()

		directory = store
		resDeps = resolver.Deps{Registry: store, Ownership: store, Actors: store, Vports: store}
		checks = append(checks, handlers.Checker{Name: "postgres", Check: store.Ping})
	} else {
		log.Warn("storage driver none: running from durable cache only")
	}

	res := resolver.New(resDeps)
	nav := &handlers.NavState{}
	m := machine.New(machine.Deps{
		Directory:  directory,
		Resolver:   res,
		Cache:      personacache.New(kv),
		Navigation: nav.Hint,
	}, cfg.MachineConfig())
	defer m.Close()

	m.Subscribe(func(_ context.Context, t notifier.Transition) {
		id := t.Current
		if id == nil {
			log.Info("identity cleared", logger.String("reason", string(t.Reason)))
			return
		}
		log.Info("identity changed",
			logger.String("reason", string(t.Reason)),
			logger.String("type", string(id.Type)),
			logger.ActorID(id.ActorID),
			logger.VportID(id.VportID),
		)
	})

	h := router.New(router.Deps{
		Identity: handlers.NewIdentityHandler(handlers.Deps{
			Machine:    m,
			Ownership:  res,
			Navigation: nav,
			Directory:  directory,
		}),
		Auth: mw.AuthConfig{
			Secret:               []byte(cfg.Auth.JWTSecret),
			Issuer:               cfg.Auth.Issuer,
			AllowHeaderPrincipal: cfg.Auth.AllowHeaderPrincipal,
		},
		Health:  handlers.NewHealthHandler(m, checks...),
		Metrics: promhttp.Handler(),
	})

	log.Info("starting",
		logger.String("env", cfg.App.Env),
		logger.String("cache", cfg.Cache.Kind),
		logger.String("storage", cfg.Storage.Driver),
		logger.String("dsn", util.MaskDSN(cfg.Storage.DSN)),
		logger.String("jwt_secret", util.MaskSecret(cfg.Auth.JWTSecret)),
		logger.Bool("header_principal", cfg.Auth.AllowHeaderPrincipal),
		logger.String("navigation_policy", cfg.Identity.NavigationPolicy),
	)
	return httpx.Start(ctx, httpx.ServerConfig{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     config.Dur(cfg.Server.ReadTimeout),
		WriteTimeout:    config.Dur(cfg.Server.WriteTimeout),
		ShutdownTimeout: config.Dur(cfg.Server.ShutdownTimeout),
	}, h)
}
