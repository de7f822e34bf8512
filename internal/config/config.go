package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverRedis    = "redis"
)

// Config holds the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Registry RegistryConfig `yaml:"registry"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig selects and locates the connection store.
type DatabaseConfig struct {
	Driver      string `yaml:"driver"`       // memory, postgres, sqlite, mysql or redis
	URL         string `yaml:"url"`          // DSN, file path (sqlite) or redis:// URL
	RedisPrefix string `yaml:"redis_prefix"` // key prefix for the redis driver
}

// CacheConfig holds settings for the read-through record cache.
type CacheConfig struct {
	Enabled         bool          `yaml:"enabled"`
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// RegistryConfig holds validation policy.
type RegistryConfig struct {
	StrictUpdate bool `yaml:"strict_update"` // validate fields set by updates
}

// LogConfig holds slog settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Defaults returns a Config populated with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Driver: DriverMemory,
		},
		Cache: CacheConfig{
			TTL:             5 * time.Minute,
			CleanupInterval: 10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML configuration file at path and returns a Config.
// Environment overrides are applied after the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads a .env file if present, then path (or "config.yaml"
// when path is empty). A missing default file yields defaults plus
// environment overrides; a missing explicit path is an error.
func LoadDefault(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = "config.yaml"
	}
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg = Defaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("CONNREG_SERVER_HOST"); ok {
		c.Server.Host = v
	}
	if v, ok := os.LookupEnv("CONNREG_SERVER_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CONNREG_SERVER_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := os.LookupEnv("CONNREG_DATABASE_DRIVER"); ok {
		c.Database.Driver = v
	}
	if v, ok := os.LookupEnv("CONNREG_DATABASE_URL"); ok {
		c.Database.URL = v
	}
	if v, ok := os.LookupEnv("CONNREG_CACHE_TTL"); ok {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CONNREG_CACHE_TTL: %w", err)
		}
		c.Cache.Enabled = ttl > 0
		c.Cache.TTL = ttl
	}
	if v, ok := os.LookupEnv("CONNREG_STRICT_UPDATE"); ok {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CONNREG_STRICT_UPDATE: %w", err)
		}
		c.Registry.StrictUpdate = strict
	}
	if v, ok := os.LookupEnv("CONNREG_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	return nil
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	c.Database.Driver = strings.ToLower(c.Database.Driver)
	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite, DriverMySQL, DriverRedis:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
