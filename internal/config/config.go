// Package config loads service configuration from an optional YAML file,
// environment variables and built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration for the iqdb service.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Query    QueryConfig    `mapstructure:"query"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

type ServerConfig struct {
	Host string     `mapstructure:"host"`
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"` // gin mode: debug, release, test
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite (default) or postgres
	Path            string        `mapstructure:"path"`   // sqlite file path
	DSN             string        `mapstructure:"dsn"`    // postgres connection string
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type IngestConfig struct {
	// MaxDecoders caps concurrent image decodes.
	MaxDecoders int `mapstructure:"max_decoders"`
	// FetchTimeout bounds remote downloads for URL-based ingest.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	// MaxFetchBytes caps the size of a remotely fetched image.
	MaxFetchBytes int64 `mapstructure:"max_fetch_bytes"`
}

type QueryConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
}

// StorageConfig configures the optional S3-compatible archive of original
// image blobs. Disabled unless Enabled is set.
type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Load reads configuration from configPath (or ./config.yaml and
// ./configs/config.yaml when empty), applies defaults and environment
// overrides, and returns the resulting Config.
func Load(configPath string) (*Config, error) {
	// Load .env if present.
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("IQDB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5588)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/iqdb.sqlite")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 8)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("ingest.max_decoders", 4)
	v.SetDefault("ingest.fetch_timeout", 30*time.Second)
	v.SetDefault("ingest.max_fetch_bytes", int64(32<<20))
	v.SetDefault("query.default_limit", 10)
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.key_prefix", "originals/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data.
	v.BindEnv("database.dsn", "IQDB_DATABASE_DSN")
	v.BindEnv("storage.access_key", "IQDB_STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "IQDB_STORAGE_SECRET_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
