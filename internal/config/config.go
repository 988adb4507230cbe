// Package config loads process configuration from the environment.
//
// Values are read with github.com/caarlos0/env. When a .env file is present
// (or ENV_FILE points at one) it is loaded first with godotenv; variables
// already set in the environment win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// MinSecretLength is the shortest accepted signing secret.
const MinSecretLength = 32

// Config is the root configuration.
type Config struct {
	// Environment is "development", "test" or "production". Production hides
	// error internals from responses.
	Environment string `env:"APP_ENV" envDefault:"development"`

	HTTP      HTTPConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Audit     AuditConfig
	Store     StoreConfig
	Notify    NotifyConfig
}

// HTTPConfig covers the listeners and browser-facing policy.
type HTTPConfig struct {
	Addr            string        `env:"HTTP_ADDR"        envDefault:":8080"`
	GRPCAddr        string        `env:"GRPC_ADDR"`
	CORSOrigins     []string      `env:"CORS_ORIGINS"     envDefault:"http://localhost:3000" envSeparator:","`
	SecurityHeaders bool          `env:"SECURITY_HEADERS" envDefault:"true"`
	MaxBodyBytes    int64         `env:"HTTP_MAX_BODY_BYTES" envDefault:"1048576"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// TrustedProxies lists addresses or CIDR ranges whose X-Forwarded-For
	// header is believed. Empty means the TCP peer is the client.
	TrustedProxies []string `env:"HTTP_TRUSTED_PROXIES" envSeparator:","`
}

// AuthConfig holds token and password hashing settings.
type AuthConfig struct {
	AccessSecret      string        `env:"JWT_SECRET"`
	RefreshSecret     string        `env:"JWT_REFRESH_SECRET"`
	AccessTTL         time.Duration `env:"JWT_EXPIRES_IN"         envDefault:"1h"`
	RefreshTTL        time.Duration `env:"JWT_REFRESH_EXPIRES_IN" envDefault:"168h"`
	Issuer            string        `env:"JWT_ISSUER"             envDefault:"fives"`
	Argon2MemoryKiB   uint32        `env:"ARGON2_MEMORY_KIB"      envDefault:"65536"`
	Argon2Time        uint32        `env:"ARGON2_TIME"            envDefault:"2"`
	Argon2Parallelism uint8         `env:"ARGON2_PARALLELISM"     envDefault:"1"`
	BootstrapUsername string        `env:"BOOTSTRAP_ADMIN_USERNAME" envDefault:"admin"`
	BootstrapPassword string        `env:"BOOTSTRAP_ADMIN_PASSWORD" envDefault:"admin123"`
}

// RateLimitConfig sets the general and auth-route limits.
type RateLimitConfig struct {
	Window      time.Duration `env:"RATE_LIMIT_WINDOW"       envDefault:"15m"`
	MaxRequests int           `env:"RATE_LIMIT_MAX_REQUESTS" envDefault:"100"`
	LoginMax    int           `env:"LOGIN_RATE_LIMIT_MAX"    envDefault:"5"`
	// TrackedKeys bounds the number of client buckets kept in memory.
	TrackedKeys int `env:"RATE_LIMIT_TRACKED_KEYS" envDefault:"10000"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL"  envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// AuditConfig selects and sizes the audit log store.
type AuditConfig struct {
	Capacity int    `env:"AUDIT_LOG_CAPACITY" envDefault:"1000"`
	RedisURL string `env:"AUDIT_REDIS_URL"`
	RedisKey string `env:"AUDIT_REDIS_KEY"    envDefault:"fives:audit:log"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	DatabaseURL string `env:"DATABASE_URL"`
}

// NotifyConfig drives the notification service and its sweeps.
type NotifyConfig struct {
	RulesFile          string   `env:"NOTIFY_RULES_FILE"`
	FallbackRecipients []string `env:"NOTIFY_FALLBACK_RECIPIENTS" envDefault:"admin" envSeparator:","`
	PassingScore       float64  `env:"NOTIFY_PASSING_SCORE"       envDefault:"70"`
	OverdueSchedule    string   `env:"SWEEP_OVERDUE_SCHEDULE"     envDefault:"@hourly"`
	LowScoreSchedule   string   `env:"SWEEP_LOW_SCORE_SCHEDULE"   envDefault:"@every 6h"`
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadDotEnv() error {
	path := strings.TrimSpace(os.Getenv("ENV_FILE"))
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Sanitize trims list values and clamps numeric settings.
func (c *Config) Sanitize() {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	c.HTTP.CORSOrigins = trimAll(c.HTTP.CORSOrigins)
	c.HTTP.TrustedProxies = trimAll(c.HTTP.TrustedProxies)
	c.Notify.FallbackRecipients = trimAll(c.Notify.FallbackRecipients)
	if c.Audit.Capacity <= 0 {
		c.Audit.Capacity = 1000
	}
	if c.RateLimit.TrackedKeys <= 0 {
		c.RateLimit.TrackedKeys = 10000
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = 1 << 20
	}
	if c.Auth.Argon2Parallelism == 0 {
		c.Auth.Argon2Parallelism = 1
	}
}

// Validate rejects configurations the service cannot run safely with.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Auth.AccessSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", MinSecretLength))
	}
	if len(c.Auth.RefreshSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("JWT_REFRESH_SECRET must be at least %d characters", MinSecretLength))
	}
	if c.Auth.AccessSecret != "" && c.Auth.AccessSecret == c.Auth.RefreshSecret {
		errs = append(errs, errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.MaxRequests <= 0 || c.RateLimit.LoginMax <= 0 {
		errs = append(errs, errors.New("rate limit window and thresholds must be positive"))
	}
	if c.Auth.Argon2MemoryKiB < 8*1024 || c.Auth.Argon2Time == 0 {
		errs = append(errs, errors.New("argon2 cost parameters are too low"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether error internals must be hidden.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func trimAll(values []string) []string {
	out := values[:0]
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
