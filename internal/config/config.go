// Package config loads simulator settings from defaults, the config file,
// GOATALLA_* environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/andrei-cloud/go_atalla/internal/hsm"
)

const (
	// EnvPrefix prefixes every environment override, e.g. GOATALLA_SERVER_PORT.
	EnvPrefix = "GOATALLA"
	// DirName is the per-user configuration directory under $HOME.
	DirName = ".go_atalla"

	KeyStoreFile  = hsm.StoreFile
	KeyStoreRedis = hsm.StoreRedis
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")

	configData Config
	v          = viper.New()
)

// Config holds all configuration settings.
type Config struct {
	Server struct {
		Host        string
		Port        int
		MaxConns    int           `mapstructure:"max_conns"`
		Framing     string        `mapstructure:"framing"`
		RateLimit   float64       `mapstructure:"rate_limit"`
		Burst       int           `mapstructure:"burst"`
		ReadTimeout time.Duration `mapstructure:"read_timeout"`
	}
	HSM struct {
		MasterKey    string `mapstructure:"master_key"`
		KeyStore     string `mapstructure:"key_store"`
		KeyDirectory string `mapstructure:"key_directory"`
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
		Key      string
	}
	Admin struct {
		Enabled bool
		Address string
	}
	Log struct {
		Level  string
		Format string
	}
}

// Address returns the protocol listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// StoreConfig returns the key directory store settings.
func (c *Config) StoreConfig() hsm.StoreConfig {
	return hsm.StoreConfig{
		Kind:          c.HSM.KeyStore,
		Path:          c.HSM.KeyDirectory,
		RedisAddr:     c.Redis.Addr,
		RedisPassword: c.Redis.Password,
		RedisDB:       c.Redis.DB,
		RedisKey:      c.Redis.Key,
	}
}

// Validate checks the settings that cannot be repaired with a default.
func (c *Config) Validate() error {
	switch c.Server.Framing {
	case "line", "anet":
	default:
		return fmt.Errorf("%w: server.framing must be line or anet, got %q", ErrInvalidConfig, c.Server.Framing)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("%w: server.rate_limit must not be negative", ErrInvalidConfig)
	}
	switch c.HSM.KeyStore {
	case KeyStoreFile:
	case KeyStoreRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("%w: redis.addr is required for the redis key store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: hsm.key_store must be file or redis, got %q", ErrInvalidConfig, c.HSM.KeyStore)
	}
	if c.HSM.MasterKey == "" {
		return fmt.Errorf("%w: hsm.master_key is required", ErrInvalidConfig)
	}

	return nil
}

// Initialize reads the configuration. An empty cfgFile searches the working
// directory, $HOME/.go_atalla and /etc/go_atalla, creating a default file in
// $HOME/.go_atalla on first use.
func Initialize(cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join("$HOME", DirName))
		v.AddConfigPath("/etc/go_atalla/")

		if err := ensureConfig(); err != nil {
			return fmt.Errorf("error creating config file: %w", err)
		}
	}

	cfg, err := load(v)
	if err != nil {
		return err
	}
	configData = *cfg

	return nil
}

// Reload re-reads the config file and environment. The current settings are
// kept when the new ones fail to load or validate.
func Reload() error {
	cfg, err := load(v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	configData = *cfg

	return nil
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 7000)
	v.SetDefault("server.max_conns", 100)
	v.SetDefault("server.framing", "line")
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.burst", 0)
	v.SetDefault("server.read_timeout", "0s")

	v.SetDefault("hsm.master_key", "0123456789ABCDEFFEDCBA9876543210")
	v.SetDefault("hsm.key_store", KeyStoreFile)
	v.SetDefault("hsm.key_directory", filepath.Join(os.Getenv("HOME"), DirName, "keys.yaml"))

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "atalla:keys")

	v.SetDefault("admin.enabled", false)
	v.SetDefault("admin.address", "localhost:9090")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "human")
}

const defaultConfig = `# go_atalla configuration file
server:
  host: localhost
  port: 7000
  max_conns: 100
  framing: line
  rate_limit: 0

hsm:
  master_key: 0123456789ABCDEFFEDCBA9876543210
  key_store: file

admin:
  enabled: false
  address: localhost:9090

log:
  level: info
  format: human
`

// ensureConfig creates a default config file if none exists.
func ensureConfig() error {
	home := os.Getenv("HOME")
	if home == "" {
		return nil
	}
	dir := filepath.Join(home, DirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err := os.WriteFile(configFile, []byte(defaultConfig), 0o600); err != nil {
			return err
		}
	}

	return nil
}

// BindFlag binds a command-line flag to a configuration key. A flag the user
// sets overrides the file and the environment.
func BindFlag(key string, flag *pflag.Flag) {
	if flag == nil {
		return
	}
	_ = v.BindPFlag(key, flag)
}

// Get returns the current configuration.
func Get() *Config {
	return &configData
}

// GetViper returns the viper instance.
func GetViper() *viper.Viper {
	return v
}
