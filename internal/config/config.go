package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/persona/internal/identity/machine"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env  string `yaml:"app_env"`
		Name string `yaml:"name"`
	} `yaml:"app"`

	Server struct {
		Addr            string `yaml:"addr"`
		ReadTimeout     string `yaml:"read_timeout"`
		WriteTimeout    string `yaml:"write_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Storage struct {
		// postgres | none. Con none el agente arranca sin Directory Service
		// (sólo útil para probar el cache).
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MinConns        int    `yaml:"min_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
		MigrationsDir string `yaml:"migrations_dir"`
	} `yaml:"storage"`

	Cache struct {
		// memory | file | redis
		Kind string `yaml:"kind"`
		File struct {
			Dir string `yaml:"dir"`
		} `yaml:"file"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Identity struct {
		// route_unless_other_vport | route_always | stored_first | ignore
		NavigationPolicy string `yaml:"navigation_policy"`
		ResolveTimeout   string `yaml:"resolve_timeout"`
	} `yaml:"identity"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		Issuer    string `yaml:"issuer"`
		// Sólo dev: acepta X-User-ID como principal sin token.
		AllowHeaderPrincipal bool `yaml:"allow_header_principal"`
	} `yaml:"auth"`

	Log struct {
		Env   string `yaml:"env"`
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Default devuelve la config que se usa cuando no hay archivo.
func Default() *Config {
	var c Config
	c.setDefaults()
	c.applyEnvOverrides()
	return &c
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	c.setDefaults()

	// validate string durations
	for name, v := range map[string]string{
		"server.read_timeout":                c.Server.ReadTimeout,
		"server.write_timeout":               c.Server.WriteTimeout,
		"server.shutdown_timeout":            c.Server.ShutdownTimeout,
		"storage.postgres.conn_max_lifetime": c.Storage.Postgres.ConnMaxLifetime,
		"identity.resolve_timeout":           c.Identity.ResolveTimeout,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}

	c.applyEnvOverrides()
	return &c, nil
}

// sane defaults
func (c *Config) setDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.Name == "" {
		c.App.Name = "persona"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "10s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "30s"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	if c.Storage.Postgres.MaxOpenConns == 0 {
		c.Storage.Postgres.MaxOpenConns = 10
	}
	if c.Storage.MigrationsDir == "" {
		c.Storage.MigrationsDir = "migrations/postgres"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "file"
	}
	if c.Cache.File.Dir == "" {
		c.Cache.File.Dir = "data/persona-cache"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "persona:"
	}
	if c.Identity.NavigationPolicy == "" {
		c.Identity.NavigationPolicy = string(machine.PolicyRouteUnlessOtherVport)
	}
	if c.Identity.ResolveTimeout == "" {
		c.Identity.ResolveTimeout = "5s"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "persona"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Dur parsea una duración ya validada; vacío o inválido devuelve 0.
func Dur(s string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return d
}

// MachineConfig arma la config del state machine.
func (c *Config) MachineConfig() machine.Config {
	p, _ := machine.ParseNavigationPolicy(c.Identity.NavigationPolicy)
	return machine.Config{
		NavigationPolicy: p,
		ResolveTimeout:   Dur(c.Identity.ResolveTimeout),
	}
}

// LogEnv devuelve el env del logger; si no se configuró, prod usa JSON.
func (c *Config) LogEnv() string {
	if c.Log.Env != "" {
		return c.Log.Env
	}
	if strings.EqualFold(c.App.Env, "prod") {
		return "prod"
	}
	return "dev"
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno
// y fuerza seguridad en prod (sin X-User-ID).
func (c *Config) applyEnvOverrides() {
	// App
	if v, ok := getEnvStr("PERSONA_APP_ENV"); ok {
		c.App.Env = v
	}

	// Server
	if v, ok := getEnvStr("PERSONA_SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvDur("PERSONA_SERVER_SHUTDOWN_TIMEOUT"); ok {
		c.Server.ShutdownTimeout = v.String()
	}

	// Storage
	if v, ok := getEnvStr("PERSONA_STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("PERSONA_STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("PERSONA_POSTGRES_MAX_OPEN_CONNS"); ok {
		c.Storage.Postgres.MaxOpenConns = v
	}
	if v, ok := getEnvInt("PERSONA_POSTGRES_MIN_CONNS"); ok {
		c.Storage.Postgres.MinConns = v
	}
	if v, ok := getEnvStr("PERSONA_MIGRATIONS_DIR"); ok {
		c.Storage.MigrationsDir = v
	}

	// Cache
	if v, ok := getEnvStr("PERSONA_CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("PERSONA_CACHE_DIR"); ok {
		c.Cache.File.Dir = v
	}
	if v, ok := getEnvStr("PERSONA_REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("PERSONA_REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("PERSONA_REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("PERSONA_REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}

	// Identity
	if v, ok := getEnvStr("PERSONA_NAVIGATION_POLICY"); ok {
		c.Identity.NavigationPolicy = v
	}
	if v, ok := getEnvDur("PERSONA_RESOLVE_TIMEOUT"); ok {
		c.Identity.ResolveTimeout = v.String()
	}

	// Auth
	if v, ok := getEnvStr("PERSONA_JWT_SECRET"); ok {
		c.Auth.JWTSecret = v
	}
	if v, ok := getEnvStr("PERSONA_JWT_ISSUER"); ok {
		c.Auth.Issuer = v
	}
	if v, ok := getEnvBool("PERSONA_ALLOW_HEADER_PRINCIPAL"); ok {
		c.Auth.AllowHeaderPrincipal = v
	}

	// Log
	if v, ok := getEnvStr("PERSONA_LOG_ENV"); ok {
		c.Log.Env = v
	}
	if v, ok := getEnvStr("PERSONA_LOG_LEVEL"); ok {
		c.Log.Level = v
	}

	// en prod nunca se acepta el principal por header
	if strings.EqualFold(c.App.Env, "prod") {
		c.Auth.AllowHeaderPrincipal = false
	}
}

// Validate performs validation of critical configuration values
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, errors.New("storage.dsn is required for driver postgres"))
		}
	case "none":
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q not supported", c.Storage.Driver))
	}

	switch c.Cache.Kind {
	case "memory":
	case "file":
		if strings.TrimSpace(c.Cache.File.Dir) == "" {
			errs = append(errs, errors.New("cache.file.dir is required for kind file"))
		}
	case "redis":
		if strings.TrimSpace(c.Cache.Redis.Addr) == "" {
			errs = append(errs, errors.New("cache.redis.addr is required for kind redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.kind %q not supported", c.Cache.Kind))
	}

	if _, ok := machine.ParseNavigationPolicy(c.Identity.NavigationPolicy); !ok {
		errs = append(errs, fmt.Errorf("identity.navigation_policy %q not supported", c.Identity.NavigationPolicy))
	}

	if c.Auth.JWTSecret == "" && !c.Auth.AllowHeaderPrincipal {
		errs = append(errs, errors.New("auth.jwt_secret is required unless auth.allow_header_principal is enabled"))
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 bytes"))
	}

	return errors.Join(errs...)
}
