package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/persona/internal/identity/machine"
)

const secret = "0123456789abcdef0123456789abcdef"

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load(writeYAML(t, "storage:\n  dsn: postgres://localhost/persona\n"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, "postgres", c.Storage.Driver)
	assert.Equal(t, "file", c.Cache.Kind)
	assert.Equal(t, "persona:", c.Cache.Redis.Prefix)
	assert.Equal(t, string(machine.PolicyRouteUnlessOtherVport), c.Identity.NavigationPolicy)

	mc := c.MachineConfig()
	assert.Equal(t, machine.PolicyRouteUnlessOtherVport, mc.NavigationPolicy)
	assert.Equal(t, 5*time.Second, mc.ResolveTimeout)
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load(writeYAML(t, "identity:\n  resolve_timeout: soon\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identity.resolve_timeout")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PERSONA_CACHE_KIND", "redis")
	t.Setenv("PERSONA_REDIS_ADDR", "localhost:6379")
	t.Setenv("PERSONA_REDIS_DB", "3")
	t.Setenv("PERSONA_NAVIGATION_POLICY", "stored_first")
	t.Setenv("PERSONA_RESOLVE_TIMEOUT", "250ms")
	t.Setenv("PERSONA_JWT_SECRET", secret)

	c, err := Load(writeYAML(t, "cache:\n  kind: memory\nstorage:\n  dsn: x\n"))
	require.NoError(t, err)

	assert.Equal(t, "redis", c.Cache.Kind)
	assert.Equal(t, "localhost:6379", c.Cache.Redis.Addr)
	assert.Equal(t, 3, c.Cache.Redis.DB)
	assert.Equal(t, machine.PolicyStoredFirst, c.MachineConfig().NavigationPolicy)
	assert.Equal(t, 250*time.Millisecond, c.MachineConfig().ResolveTimeout)
	assert.NoError(t, c.Validate())
}

func TestProdDisablesHeaderPrincipal(t *testing.T) {
	t.Setenv("PERSONA_APP_ENV", "prod")
	c, err := Load(writeYAML(t, "auth:\n  allow_header_principal: true\n"))
	require.NoError(t, err)
	assert.False(t, c.Auth.AllowHeaderPrincipal)
	assert.Equal(t, "prod", c.LogEnv())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"postgres without dsn", func(c *Config) { c.Storage.DSN = "" }, "storage.dsn"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }, "storage.driver"},
		{"redis without addr", func(c *Config) { c.Cache.Kind = "redis" }, "cache.redis.addr"},
		{"unknown cache", func(c *Config) { c.Cache.Kind = "memcached" }, "cache.kind"},
		{"bad policy", func(c *Config) { c.Identity.NavigationPolicy = "yolo" }, "navigation_policy"},
		{"no auth", func(c *Config) { c.Auth.JWTSecret = "" }, "jwt_secret"},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "32 bytes"},
		{"header principal only", func(c *Config) {
			c.Auth.JWTSecret = ""
			c.Auth.AllowHeaderPrincipal = true
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.Storage.DSN = "postgres://localhost/persona"
			c.Auth.JWTSecret = secret
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
