// Package config loads server configuration.
//
// Values start from Default, are merged with an optional YAML file named by
// FLIGHTGROUP_CONFIG, and are finally overridden by individual environment
// variables so container deployments can change one setting without a file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config file path
const EnvConfigPath = "FLIGHTGROUP_CONFIG"

// Storage backends
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Config is the complete server configuration
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Log      LogConfig     `yaml:"log"`
	Storage  StorageConfig `yaml:"storage"`
	Gateway  GatewayConfig `yaml:"gateway"`
	Tiers    TierConfig    `yaml:"tiers"`
	Sessions SessionConfig `yaml:"sessions"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures the process logger
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
}

// StorageConfig selects and configures the persistent store
type StorageConfig struct {
	Type     string         `yaml:"type"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// RedisConfig configures the redis backend
type RedisConfig struct {
	URL      string `yaml:"url"`
	PoolSize int    `yaml:"pool_size"`
}

// PostgresConfig configures the postgres backend
type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// GatewayConfig configures the websocket transport
type GatewayConfig struct {
	// CallbackURL is the management endpoint of an external websocket
	// front; empty means only local sockets are reachable
	CallbackURL string `yaml:"callback_url"`

	// OriginPatterns restricts browser origins allowed to connect
	OriginPatterns []string `yaml:"origin_patterns"`

	// APIToken guards the event ingestion and operator routes
	APIToken string `yaml:"api_token"`

	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// TierConfig locates the tier table
type TierConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// SessionConfig holds lifetimes and freshness windows
type SessionConfig struct {
	Duration          time.Duration `yaml:"duration"`
	CacheFreshness    time.Duration `yaml:"cache_freshness"`
	GroupTTL          time.Duration `yaml:"group_ttl"`
	PilotTTL          time.Duration `yaml:"pilot_ttl"`
	InvocationTimeout time.Duration `yaml:"invocation_timeout"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			Type: StorageMemory,
			Redis: RedisConfig{
				PoolSize: 10,
			},
			Postgres: PostgresConfig{
				Table: "flightgroup_items",
			},
		},
		Gateway: GatewayConfig{
			WriteTimeout: 10 * time.Second,
		},
		Tiers: TierConfig{
			Watch: true,
		},
		Sessions: SessionConfig{
			Duration:          12 * time.Hour,
			CacheFreshness:    30 * time.Second,
			GroupTTL:          72 * time.Hour,
			PilotTTL:          30 * 24 * time.Hour,
			InvocationTimeout: 29 * time.Second,
		},
	}
}

// Load builds the configuration from FLIGHTGROUP_CONFIG, if set, and the
// process environment
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv(EnvConfigPath); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile builds the configuration from a specific file, without
// environment overrides
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile merges a YAML file into the current config
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides individual settings from environment variables
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	set := func(name string, dst *string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	set("STORAGE_TYPE", &c.Storage.Type)
	set("REDIS_URL", &c.Storage.Redis.URL)
	set("POSTGRES_DSN", &c.Storage.Postgres.DSN)
	set("TIER_TABLE", &c.Tiers.Path)
	set("LOG_LEVEL", &c.Log.Level)
	set("CALLBACK_URL", &c.Gateway.CallbackURL)
	set("API_TOKEN", &c.Gateway.APIToken)

	if v, ok := lookup("LISTEN_PORT"); ok && v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid LISTEN_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Type {
	case StorageMemory:
	case StorageRedis:
		if c.Storage.Redis.URL == "" {
			errs = append(errs, errors.New("storage.redis.url is required when storage type is redis"))
		}
	case StoragePostgres:
		if c.Storage.Postgres.DSN == "" {
			errs = append(errs, errors.New("storage.postgres.dsn is required when storage type is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid storage type %q: must be memory, redis or postgres", c.Storage.Type))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port %d", c.Server.Port))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// SlogLevel returns the configured log level
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.Log.Level)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
