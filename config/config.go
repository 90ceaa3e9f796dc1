package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	SIGE    SIGEConfig    `mapstructure:"sige"`
	Store   StoreConfig   `mapstructure:"store"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// SIGEConfig holds SIGE API configuration
type SIGEConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Token         string        `mapstructure:"token"` // fallback when the request carries none
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	PageSize      int           `mapstructure:"page_size"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
}

// StoreConfig selects where mappings are persisted
type StoreConfig struct {
	Type      string `mapstructure:"type"` // "memory", "mysql" or "pebble"
	DSN       string `mapstructure:"dsn"`
	PebbleDir string `mapstructure:"pebble_dir"`
}

// CatalogConfig selects where local products are read from
type CatalogConfig struct {
	Type  string `mapstructure:"type"` // "file" or "mysql"
	File  string `mapstructure:"file"`
	DSN   string `mapstructure:"dsn"` // defaults to store.dsn
	Table string `mapstructure:"table"`
}

// CacheConfig holds balance cache configuration
type CacheConfig struct {
	Type       string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL   string        `mapstructure:"redis_url"`
	BalanceTTL time.Duration `mapstructure:"balance_ttl"`
}

// SyncConfig tunes sync passes and balance batches
type SyncConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom loads configuration like Load, reading the given file instead of searching for
// config.yaml when file is not empty
func LoadFrom(file string) (*Config, error) {
	// An optional .env is loaded first; real environment variables win over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}

	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/sigesync/")
	}

	// Environment variable settings: SIGESYNC_SIGE_BASE_URL overrides sige.base_url
	v.SetEnvPrefix("SIGESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if config.Catalog.DSN == "" {
		config.Catalog.DSN = config.Store.DSN
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values. Every key needs one so that
// AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("sige.base_url", "")
	v.SetDefault("sige.token", "")
	v.SetDefault("sige.timeout", "30s")
	v.SetDefault("sige.rate_per_second", 5.0)
	v.SetDefault("sige.burst", 10)
	v.SetDefault("sige.page_size", 200)
	v.SetDefault("sige.max_attempts", 3)

	v.SetDefault("store.type", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.pebble_dir", "./data/mappings")

	v.SetDefault("catalog.type", "file")
	v.SetDefault("catalog.file", "./data/products.json")
	v.SetDefault("catalog.dsn", "")
	v.SetDefault("catalog.table", "products")

	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.balance_ttl", "5m")

	v.SetDefault("sync.concurrency", 3)
	v.SetDefault("sync.fetch_timeout", "15s")
	v.SetDefault("sync.lock_ttl", "10m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.SIGE.BaseURL == "" {
		return fmt.Errorf("SIGE base URL is required (set SIGESYNC_SIGE_BASE_URL)")
	}

	switch config.Store.Type {
	case "memory":
	case "mysql":
		if config.Store.DSN == "" {
			return fmt.Errorf("store DSN is required when store type is 'mysql'")
		}
	case "pebble":
		if config.Store.PebbleDir == "" {
			return fmt.Errorf("pebble directory is required when store type is 'pebble'")
		}
	default:
		return fmt.Errorf("store type must be 'memory', 'mysql' or 'pebble', got: %s", config.Store.Type)
	}

	switch config.Catalog.Type {
	case "file":
		if config.Catalog.File == "" {
			return fmt.Errorf("catalog file is required when catalog type is 'file'")
		}
	case "mysql":
		if config.Catalog.DSN == "" {
			return fmt.Errorf("catalog DSN is required when catalog type is 'mysql'")
		}
	default:
		return fmt.Errorf("catalog type must be 'file' or 'mysql', got: %s", config.Catalog.Type)
	}

	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}
	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when cache type is 'redis'")
	}

	if config.Sync.Concurrency < 1 {
		return fmt.Errorf("sync concurrency must be at least 1, got: %d", config.Sync.Concurrency)
	}

	if config.Log.Format != "json" && config.Log.Format != "text" {
		return fmt.Errorf("log format must be 'json' or 'text', got: %s", config.Log.Format)
	}

	return nil
}
