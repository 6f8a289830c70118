package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadDefaults(t *testing.T) {
	vp := viper.New()
	vp.SetConfigFile(writeFile(t, ""))
	cfg, err := load(vp)
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Server.MaxConns)
	assert.Equal(t, "line", cfg.Server.Framing)
	assert.Equal(t, KeyStoreFile, cfg.HSM.KeyStore)
	assert.Equal(t, "atalla:keys", cfg.Redis.Key)
	assert.False(t, cfg.Admin.Enabled)
	assert.Equal(t, "localhost:7000", cfg.Address())
	require.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	t.Setenv("GOATALLA_SERVER_PORT", "7100")
	t.Setenv("GOATALLA_HSM_MASTER_KEY", "8CA64DE9C1B123A7B37A8B2C4D5E6F70")

	vp := viper.New()
	vp.SetConfigFile(writeFile(t, `
server:
  host: 0.0.0.0
  port: 7001
  framing: anet
  rate_limit: 50
  burst: 10
  read_timeout: 30s
hsm:
  key_store: redis
redis:
  addr: redis:6379
admin:
  enabled: true
`))
	cfg, err := load(vp)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 7100, cfg.Server.Port, "environment overrides the file")
	assert.Equal(t, "anet", cfg.Server.Framing)
	assert.InDelta(t, 50, cfg.Server.RateLimit, 0)
	assert.Equal(t, 10, cfg.Server.Burst)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "8CA64DE9C1B123A7B37A8B2C4D5E6F70", cfg.HSM.MasterKey)
	assert.Equal(t, KeyStoreRedis, cfg.HSM.KeyStore)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Admin.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestFlagOverridesFile(t *testing.T) {
	vp := viper.New()
	vp.SetConfigFile(writeFile(t, "server:\n  port: 7001\n"))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("port", 0, "")
	require.NoError(t, fs.Parse([]string{"--port", "7200"}))
	require.NoError(t, vp.BindPFlag("server.port", fs.Lookup("port")))

	cfg, err := load(vp)
	require.NoError(t, err)
	assert.Equal(t, 7200, cfg.Server.Port)
}

func TestLoadBadFile(t *testing.T) {
	vp := viper.New()
	vp.SetConfigFile(writeFile(t, "server: [unterminated\n"))

	_, err := load(vp)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		var c Config
		c.Server.Framing = "line"
		c.Server.Port = 7000
		c.HSM.KeyStore = KeyStoreFile
		c.HSM.MasterKey = "0123456789ABCDEFFEDCBA9876543210"

		return &c
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "framing", mutate: func(c *Config) { c.Server.Framing = "xml" }},
		{name: "port", mutate: func(c *Config) { c.Server.Port = 70000 }},
		{name: "rate", mutate: func(c *Config) { c.Server.RateLimit = -1 }},
		{name: "store", mutate: func(c *Config) { c.HSM.KeyStore = "etcd" }},
		{name: "redis addr", mutate: func(c *Config) { c.HSM.KeyStore = KeyStoreRedis }},
		{name: "master key", mutate: func(c *Config) { c.HSM.MasterKey = "" }},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := valid()
			tt.mutate(c)
			require.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}
}

func TestInitializeWithFile(t *testing.T) {
	path := writeFile(t, "server:\n  port: 7300\n")
	require.NoError(t, Initialize(path))
	assert.Equal(t, 7300, Get().Server.Port)
	assert.NotNil(t, GetViper())
}
