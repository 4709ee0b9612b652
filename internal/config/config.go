// Package config loads the service configuration from defaults, an optional
// YAML file and USERCACHE_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kengibson1111/go-user-cache/internal"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "USERCACHE_"

// Config is the complete service configuration.
type Config struct {
	Environment string           `yaml:"environment"`
	Redis       *internal.Config `yaml:"redis"`
	Cache       CacheConfig      `yaml:"cache"`
	Database    DatabaseConfig   `yaml:"database"`
	Server      ServerConfig     `yaml:"server"`
	Log         LogConfig        `yaml:"log"`
}

// CacheConfig holds cache policy settings.
type CacheConfig struct {
	DefaultTTL       time.Duration `yaml:"default_ttl"`
	NegativeTTL      time.Duration `yaml:"negative_ttl"` // 0 disables not-found markers
	ScanCount        int64         `yaml:"scan_count"`
	BatchSize        int           `yaml:"batch_size"`
	Codec            string        `yaml:"codec"`
	MetricsNamespace string        `yaml:"metrics_namespace"`
}

// DatabaseConfig holds the persistent store settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Environment: "development",
		Redis:       internal.DefaultConfig(),
		Cache: CacheConfig{
			DefaultTTL:       time.Hour,
			ScanCount:        internal.DefaultScanCount,
			BatchSize:        100,
			Codec:            "json",
			MetricsNamespace: "usercache",
		},
		Database: DatabaseConfig{
			DSN: "file:users.db?cache=shared",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			AllowedOrigins:  []string{"*"},
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the process environment.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.Getenv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	// a partial redis section must not zero the retry defaults
	if c.Redis == nil {
		c.Redis = internal.DefaultConfig()
	}
	if c.Redis.RetryConfig == nil {
		c.Redis.RetryConfig = internal.DefaultRetryConfig()
	}

	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	var errs []error
	str := func(name string, dst *string) {
		if v := getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v := getenv(EnvPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v := getenv(EnvPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	str("ENV", &c.Environment)

	str("REDIS_ADDR", &c.Redis.RedisAddr)
	str("REDIS_PASSWORD", &c.Redis.RedisPassword)
	integer("REDIS_DB", &c.Redis.RedisDB)
	integer("REDIS_POOL_SIZE", &c.Redis.PoolSize)
	integer("REDIS_MAX_RETRIES", &c.Redis.MaxRetries)
	duration("REDIS_DIAL_TIMEOUT", &c.Redis.DialTimeout)
	if v := getenv(EnvPrefix + "REDIS_BREAKER"); v != "" {
		on, err := strconv.ParseBool(v)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%sREDIS_BREAKER: %w", EnvPrefix, err))
		case on && c.Redis.BreakerConfig == nil:
			c.Redis.BreakerConfig = internal.DefaultBreakerConfig()
		case !on:
			c.Redis.BreakerConfig = nil
		}
	}

	duration("CACHE_DEFAULT_TTL", &c.Cache.DefaultTTL)
	duration("CACHE_NEGATIVE_TTL", &c.Cache.NegativeTTL)
	integer("CACHE_BATCH_SIZE", &c.Cache.BatchSize)
	if v := getenv(EnvPrefix + "CACHE_SCAN_COUNT"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sCACHE_SCAN_COUNT: %w", EnvPrefix, err))
		} else {
			c.Cache.ScanCount = n
		}
	}
	str("CACHE_CODEC", &c.Cache.Codec)

	str("DATABASE_DSN", &c.Database.DSN)

	str("SERVER_ADDR", &c.Server.Addr)
	if v := getenv(EnvPrefix + "SERVER_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	duration("SERVER_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)

	str("LOG_LEVEL", &c.Log.Level)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	v := internal.NewInputValidator()

	if c.Redis == nil {
		return internal.NewValidationError("redis configuration is required", nil)
	}
	if err := internal.ValidateConfig(c.Redis); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := v.ValidateTTL(c.Cache.DefaultTTL, "cache default TTL", false); err != nil {
		return err
	}
	if err := v.ValidateTTL(c.Cache.NegativeTTL, "cache negative TTL", true); err != nil {
		return err
	}
	if err := v.ValidatePageSize(c.Cache.ScanCount, "cache scan count"); err != nil {
		return err
	}
	if err := v.ValidatePageSize(int64(c.Cache.BatchSize), "cache batch size"); err != nil {
		return err
	}

	switch strings.ToLower(c.Cache.Codec) {
	case "", "json", "msgpack", "cbor":
	default:
		return internal.NewValidationError(fmt.Sprintf("unknown cache codec %q", c.Cache.Codec), nil)
	}

	if c.Database.DSN == "" {
		return internal.NewValidationError("database DSN cannot be empty", nil)
	}

	if c.Server.Addr == "" {
		return internal.NewValidationError("server address cannot be empty", nil)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return internal.NewValidationError("server shutdown timeout must be positive", nil)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return internal.NewValidationError(fmt.Sprintf("unknown log level %q", c.Log.Level), nil)
	}

	return nil
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
