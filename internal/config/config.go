// Package config provides environment configuration for the messaging
// services.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string        `env:"PORT" envDefault:"8080"`
	ServerReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	ServerWriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`

	// Storage settings
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"sqlite"`
	DatabasePath  string `env:"DATABASE_PATH" envDefault:"data/messaging.db"`

	// NATS settings
	NATSURL            string        `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	NATSCAFile         string        `env:"NATS_CA_FILE"`
	NATSCertFile       string        `env:"NATS_CERT_FILE"`
	NATSKeyFile        string        `env:"NATS_KEY_FILE"`
	NATSToken          string        `env:"NATS_TOKEN"`
	NATSRequestTimeout time.Duration `env:"NATS_REQUEST_TIMEOUT" envDefault:"2s"`

	// Valkey settings. An empty address keeps digest locks in process.
	ValkeyAddr     string `env:"VALKEY_ADDR"`
	ValkeyPassword string `env:"VALKEY_PASSWORD"`

	// JWT settings
	JWTSecret string `env:"JWT_SECRET" envDefault:"development-secret-change-in-production"`

	// CORS origins; empty allows any http(s) origin.
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	// Rate limiting
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"60"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	// Messaging
	MaxMessageLength int    `env:"MAX_MESSAGE_LENGTH" envDefault:"2000"`
	DefaultLocale    string `env:"DEFAULT_LOCALE" envDefault:"en"`

	// Unread digest
	DigestThreshold       time.Duration `env:"DIGEST_THRESHOLD" envDefault:"12h"`
	DigestInterval        time.Duration `env:"DIGEST_INTERVAL" envDefault:"15m"`
	DigestLockTTL         time.Duration `env:"DIGEST_LOCK_TTL" envDefault:"5m"`
	DigestMaxEmailsPerRun int           `env:"DIGEST_MAX_EMAILS_PER_RUN" envDefault:"0"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Tracing
	TracingEndpoint string `env:"TRACING_ENDPOINT" envDefault:"localhost:4318"`
	TracingEnabled  bool   `env:"TRACING_ENABLED" envDefault:"false"`
}

// Load reads a .env file when present, then environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse reads configuration from environment variables only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.StorageDriver) {
	case StorageSQLite, StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be positive")
	}
	if c.DigestThreshold <= 0 {
		return fmt.Errorf("DIGEST_THRESHOLD must be positive")
	}
	if c.DigestInterval <= 0 {
		return fmt.Errorf("DIGEST_INTERVAL must be positive")
	}
	if c.DigestMaxEmailsPerRun < 0 {
		return fmt.Errorf("DIGEST_MAX_EMAILS_PER_RUN must not be negative")
	}
	return nil
}
