package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Assets   AssetConfig
	RabbitMQ RabbitMQConfig
	Auth     AuthConfig
	Logger   LoggerConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port        string
	MaxUploadMB int
}

// DatabaseConfig selects the gorm dialector and its DSN.
type DatabaseConfig struct {
	Driver string // "sqlite" or "postgres"
	DSN    string
}

// AssetConfig configures where uploaded pictures live and how they are served.
type AssetConfig struct {
	Backend   string // "disk" or "s3"
	Dir       string
	URLPrefix string
	S3Bucket  string
	S3Region  string
	S3Prefix  string
}

// RabbitMQConfig configures product event publishing. An empty URL disables it.
type RabbitMQConfig struct {
	URL      string
	Exchange string
}

// AuthConfig configures registration tokens and whether writes need one.
type AuthConfig struct {
	JWTSecret string
	Required  bool
}

// LoggerConfig holds logger-related configuration.
type LoggerConfig struct {
	Level  string
	Format string // "json" or "console"
}

// SetDefaults registers every key with its default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", ":3000")
	v.SetDefault("MAX_UPLOAD_MB", 10)
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DATABASE_DSN", "storefront.db")
	v.SetDefault("ASSET_BACKEND", "disk")
	v.SetDefault("ASSET_DIR", "images")
	v.SetDefault("ASSET_URL_PREFIX", "/images")
	v.SetDefault("S3_BUCKET", "")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_PREFIX", "images/")
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("RABBITMQ_EXCHANGE", "products")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("AUTH_REQUIRED", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// Load reads an optional .env file, then the environment, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper builds a validated Config from v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        v.GetString("APP_PORT"),
			MaxUploadMB: v.GetInt("MAX_UPLOAD_MB"),
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(v.GetString("DB_DRIVER")),
			DSN:    v.GetString("DATABASE_DSN"),
		},
		Assets: AssetConfig{
			Backend:   strings.ToLower(v.GetString("ASSET_BACKEND")),
			Dir:       v.GetString("ASSET_DIR"),
			URLPrefix: v.GetString("ASSET_URL_PREFIX"),
			S3Bucket:  v.GetString("S3_BUCKET"),
			S3Region:  v.GetString("S3_REGION"),
			S3Prefix:  v.GetString("S3_PREFIX"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      v.GetString("RABBITMQ_URL"),
			Exchange: v.GetString("RABBITMQ_EXCHANGE"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
			Required:  v.GetBool("AUTH_REQUIRED"),
		},
		Logger: LoggerConfig{
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("APP_PORT is required")
	}
	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("MAX_UPLOAD_MB must be at least 1")
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid DB_DRIVER: %s (must be sqlite or postgres)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}

	switch c.Assets.Backend {
	case "disk":
		if c.Assets.Dir == "" {
			return fmt.Errorf("ASSET_DIR is required for the disk asset backend")
		}
	case "s3":
		if c.Assets.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 asset backend")
		}
		if c.Assets.S3Region == "" {
			return fmt.Errorf("S3_REGION is required for the s3 asset backend")
		}
	default:
		return fmt.Errorf("invalid ASSET_BACKEND: %s (must be disk or s3)", c.Assets.Backend)
	}
	if !strings.HasPrefix(c.Assets.URLPrefix, "/") || c.Assets.URLPrefix == "/" {
		return fmt.Errorf("ASSET_URL_PREFIX must be an absolute path such as /images")
	}

	if c.RabbitMQ.URL != "" && c.RabbitMQ.Exchange == "" {
		return fmt.Errorf("RABBITMQ_EXCHANGE is required when RABBITMQ_URL is set")
	}

	if c.Auth.Required && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_REQUIRED is true")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logger.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}
	if c.Logger.Format != "json" && c.Logger.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logger.Format)
	}

	return nil
}

// BodyLimit is the maximum request body size in bytes.
func (c *ServerConfig) BodyLimit() int {
	return c.MaxUploadMB * 1024 * 1024
}
