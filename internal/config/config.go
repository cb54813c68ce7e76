package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port             string   `mapstructure:"PORT"`
	Env              string   `mapstructure:"ENV"`
	LogLevel         string   `mapstructure:"LOG_LEVEL"`
	DatabaseURL      string   `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32    `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir    string   `mapstructure:"MIGRATIONS_DIR"`
	RedisURL         string   `mapstructure:"REDIS_URL"`
	CacheTTL         string   `mapstructure:"CACHE_TTL"`
	QueueEnabled     bool     `mapstructure:"QUEUE_ENABLED"`
	QueuePrefix      string   `mapstructure:"QUEUE_PREFIX"`
	QueueMaxAttempts int      `mapstructure:"QUEUE_MAX_ATTEMPTS"`
	QueueWorkers     int      `mapstructure:"QUEUE_WORKERS"`
	MLLPEnabled      bool     `mapstructure:"MLLP_ENABLED"`
	MLLPAddr         string   `mapstructure:"MLLP_ADDR"`
	AuthIssuer       string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience     string   `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL      string   `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey   string   `mapstructure:"AUTH_SIGNING_KEY"`
	DefaultTenant    string   `mapstructure:"DEFAULT_TENANT"`
	RateLimitRPS     float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int      `mapstructure:"RATE_LIMIT_BURST"`
	BatchConcurrency int      `mapstructure:"BATCH_CONCURRENCY"`
	BatchMaxItems    int      `mapstructure:"BATCH_MAX_ITEMS"`
	StrictValidation bool     `mapstructure:"STRICT_VALIDATION"`
	SendingApp       string   `mapstructure:"SENDING_APPLICATION"`
	SendingFacility  string   `mapstructure:"SENDING_FACILITY"`
	WebhookRetries   int      `mapstructure:"WEBHOOK_MAX_RETRIES"`
	CORSOrigins      []string `mapstructure:"CORS_ORIGINS"`
	BodyLimit        string   `mapstructure:"BODY_LIMIT"`
	RequestTimeout   string   `mapstructure:"REQUEST_TIMEOUT"`
}

var defaults = map[string]interface{}{
	"PORT":                "8000",
	"ENV":                 "development",
	"LOG_LEVEL":           "info",
	"DB_MAX_CONNS":        20,
	"DB_MIN_CONNS":        2,
	"MIGRATIONS_DIR":      "migrations",
	"CACHE_TTL":           "10m",
	"QUEUE_ENABLED":       false,
	"QUEUE_PREFIX":        "hl7bridge",
	"QUEUE_MAX_ATTEMPTS":  3,
	"QUEUE_WORKERS":       4,
	"MLLP_ENABLED":        false,
	"MLLP_ADDR":           ":2575",
	"DEFAULT_TENANT":      "default",
	"RATE_LIMIT_RPS":      50,
	"RATE_LIMIT_BURST":    100,
	"BATCH_CONCURRENCY":   8,
	"BATCH_MAX_ITEMS":     500,
	"STRICT_VALIDATION":   false,
	"SENDING_APPLICATION": "HL7BRIDGE",
	"SENDING_FACILITY":    "HL7BRIDGE",
	"WEBHOOK_MAX_RETRIES": 3,
	"CORS_ORIGINS":        "*",
	"BODY_LIMIT":          "5M",
	"REQUEST_TIMEOUT":     "60s",
}

// Keys without a default, bound so Unmarshal still sees them.
var unset = []string{
	"DATABASE_URL",
	"REDIS_URL",
	"AUTH_ISSUER",
	"AUTH_AUDIENCE",
	"AUTH_JWKS_URL",
	"AUTH_SIGNING_KEY",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
		v.BindEnv(key)
	}
	for _, key := range unset {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AuthConfigured reports whether JWT verification has a key source.
func (c *Config) AuthConfigured() bool {
	return c.AuthSigningKey != "" || c.AuthJWKSURL != ""
}

// CacheTTLDuration parses CACHE_TTL.
func (c *Config) CacheTTLDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil {
		return 0, fmt.Errorf("CACHE_TTL %q: %w", c.CacheTTL, err)
	}
	return d, nil
}

// RequestTimeoutDuration parses REQUEST_TIMEOUT; "0" disables the deadline.
func (c *Config) RequestTimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 0, fmt.Errorf("REQUEST_TIMEOUT %q: %w", c.RequestTimeout, err)
	}
	return d, nil
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.IsProduction() && !c.AuthConfigured() {
		return fmt.Errorf(
			"AUTH_SIGNING_KEY or AUTH_JWKS_URL must be set when ENV=production. " +
				"Refusing to start without authentication configuration")
	}
	if c.BatchConcurrency <= 0 {
		return fmt.Errorf("BATCH_CONCURRENCY must be positive, got %d", c.BatchConcurrency)
	}
	if c.BatchMaxItems <= 0 {
		return fmt.Errorf("BATCH_MAX_ITEMS must be positive, got %d", c.BatchMaxItems)
	}
	if _, err := c.CacheTTLDuration(); err != nil {
		return err
	}
	if _, err := c.RequestTimeoutDuration(); err != nil {
		return err
	}
	if c.QueueEnabled && c.RedisURL == "" {
		return fmt.Errorf("QUEUE_ENABLED requires REDIS_URL")
	}
	if c.QueueMaxAttempts < 1 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be at least 1, got %d", c.QueueMaxAttempts)
	}
	return nil
}
