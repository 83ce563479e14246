// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// minSessionSecretLen is the minimum length of SESSION_SECRET in bytes.
const minSessionSecretLen = 32

// Configuration validation errors.
var (
	ErrSessionSecretTooShort = errors.New("SESSION_SECRET must be at least 32 bytes")
	ErrInvalidTokenKey       = errors.New("MCP_TOKEN_KEY must be 64 hex characters")
	ErrInvalidLogFormat      = errors.New("LOG_FORMAT must be json or text")
	ErrInvalidAppEnv         = errors.New("APP_ENV must be development, staging or production")
	ErrInvalidPoolSize       = errors.New("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS")
	ErrInvalidRateLimit      = errors.New("enabled rate limits need a positive rate and burst")
)

var appEnvs = []string{"development", "staging", "production"}

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"2"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required,notEmpty"`

	// Public base URL of the service
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Sessions
	SessionSecret     string        `env:"SESSION_SECRET,required,notEmpty"`
	SessionTTL        time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	SessionCookieName string        `env:"SESSION_COOKIE_NAME" envDefault:"agentdesk_session"`

	// MCP connections
	MCPTokenKey          string        `env:"MCP_TOKEN_KEY,required,notEmpty"`
	MCPProbeTimeout      time.Duration `env:"MCP_PROBE_TIMEOUT" envDefault:"10s"`
	MCPAllowPrivateHosts bool          `env:"MCP_ALLOW_PRIVATE_HOSTS" envDefault:"false"`

	// Rate limiting
	RateLimitAPIEnabled  bool `env:"RATE_LIMIT_API_ENABLED" envDefault:"true"`
	RateLimitAPIRPM      int  `env:"RATE_LIMIT_API_RPM" envDefault:"300"`
	RateLimitAPIBurst    int  `env:"RATE_LIMIT_API_BURST" envDefault:"30"`
	RateLimitAuthEnabled bool `env:"RATE_LIMIT_AUTH_ENABLED" envDefault:"true"`
	RateLimitAuthRPS     int  `env:"RATE_LIMIT_AUTH_RPS" envDefault:"2"`
	RateLimitAuthBurst   int  `env:"RATE_LIMIT_AUTH_BURST" envDefault:"10"`

	// Allowed browser origins, comma separated. "*.example.com" admits subdomains.
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	// Reverse proxies (CIDR or address, comma separated) whose
	// X-Forwarded-For is believed. Empty means clients are identified by the
	// TCP peer address.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`

	// Background activity pipeline
	ActivityWorkerEnabled bool          `env:"ACTIVITY_WORKER_ENABLED" envDefault:"true"`
	ActivityBatchSize     int           `env:"ACTIVITY_BATCH_SIZE" envDefault:"200"`
	ActivityClaimIdle     time.Duration `env:"ACTIVITY_CLAIM_IDLE" envDefault:"30s"`

	// Tracing. Exporting is disabled when the endpoint is empty.
	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTelServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"agentdesk"`
}

// IsDevelopment reports whether APP_ENV is development.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// TokenKey decodes MCP_TOKEN_KEY into the 32-byte sealing key.
func (c *Config) TokenKey() ([]byte, error) {
	key, err := hex.DecodeString(c.MCPTokenKey)
	if err != nil || len(key) != 32 {
		return nil, ErrInvalidTokenKey
	}
	return key, nil
}

// Validate checks values the env tags cannot express and reports every
// problem at once.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains(appEnvs, c.AppEnv) {
		errs = append(errs, ErrInvalidAppEnv)
	}
	if len(c.SessionSecret) < minSessionSecretLen {
		errs = append(errs, ErrSessionSecretTooShort)
	}
	if _, err := c.TokenKey(); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, ErrInvalidLogFormat)
	}
	if c.DBMaxConns < 1 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		errs = append(errs, ErrInvalidPoolSize)
	}
	if (c.RateLimitAPIEnabled && (c.RateLimitAPIRPM < 1 || c.RateLimitAPIBurst < 1)) ||
		(c.RateLimitAuthEnabled && (c.RateLimitAuthRPS < 1 || c.RateLimitAuthBurst < 1)) {
		errs = append(errs, ErrInvalidRateLimit)
	}
	return errors.Join(errs...)
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	origins := cfg.CORSAllowedOrigins[:0]
	for _, o := range cfg.CORSAllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.CORSAllowedOrigins = origins

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
