package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Notification channel names accepted in NOTIFY_CHANNELS.
const (
	ChannelLog   = "log"
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	CORS         CORSConfig
	Redis        RedisConfig
	Session      SessionConfig
	Verification VerificationConfig
	RateLimit    RateLimitConfig
	Notify       NotifyConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host        string
	Port        string
	Name        string
	User        string
	Password    string
	PoolMin     int
	PoolMax     int
	AutoMigrate bool
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	Origins []string
}

// RedisConfig holds the connection settings for the session store and status cache.
// When Enabled is false the in-memory stores are used instead.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// SessionConfig controls the portal session cookie.
type SessionConfig struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// VerificationConfig holds the payment verification limits.
type VerificationConfig struct {
	CodeTTL        time.Duration
	MaxAttempts    int
	ReceiptRetries int
	StatusCacheTTL time.Duration
}

// RateLimitConfig holds the per-IP token bucket settings for payment submissions.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// NotifyConfig selects and configures the verification code delivery channels.
type NotifyConfig struct {
	Channels     []string
	SNSRegion    string
	AWSAccessKey string
	AWSSecretKey string
	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first when present;
// variables already set in the environment take precedence over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// Set defaults for development
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "eportal")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_POOL_MIN", 2)
	v.SetDefault("DB_POOL_MAX", 10)
	v.SetDefault("DB_AUTO_MIGRATE", false)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000,http://localhost:3001")
	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SESSION_COOKIE_NAME", "eportal_session")
	v.SetDefault("SESSION_TTL", "2h")
	v.SetDefault("SESSION_SECURE", false)
	v.SetDefault("VERIFICATION_CODE_TTL", "10m")
	v.SetDefault("VERIFICATION_MAX_ATTEMPTS", 3)
	v.SetDefault("RECEIPT_MAX_RETRIES", 5)
	v.SetDefault("STATUS_CACHE_TTL", "1m")
	v.SetDefault("RATE_LIMIT_RPS", 1.0)
	v.SetDefault("RATE_LIMIT_BURST", 5)
	v.SetDefault("NOTIFY_CHANNELS", ChannelLog)
	v.SetDefault("SNS_REGION", "ap-southeast-1")
	v.SetDefault("SMTP_HOST", "localhost")
	v.SetDefault("SMTP_PORT", "1025")
	v.SetDefault("SMTP_FROM", "no-reply@eportal.local")

	// Bind environment variables
	v.AutomaticEnv()

	// Build configuration
	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetString("PORT"),
			Env:  v.GetString("ENV"),
		},
		Database: DatabaseConfig{
			Host:        v.GetString("DB_HOST"),
			Port:        v.GetString("DB_PORT"),
			Name:        v.GetString("DB_NAME"),
			User:        v.GetString("DB_USER"),
			Password:    v.GetString("DB_PASSWORD"),
			PoolMin:     v.GetInt("DB_POOL_MIN"),
			PoolMax:     v.GetInt("DB_POOL_MAX"),
			AutoMigrate: v.GetBool("DB_AUTO_MIGRATE"),
		},
		CORS: CORSConfig{
			Origins: parseList(v.GetString("CORS_ORIGINS")),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			Enabled:  v.GetBool("REDIS_ENABLED"),
		},
		Session: SessionConfig{
			CookieName: v.GetString("SESSION_COOKIE_NAME"),
			TTL:        v.GetDuration("SESSION_TTL"),
			Secure:     v.GetBool("SESSION_SECURE"),
		},
		Verification: VerificationConfig{
			CodeTTL:        v.GetDuration("VERIFICATION_CODE_TTL"),
			MaxAttempts:    v.GetInt("VERIFICATION_MAX_ATTEMPTS"),
			ReceiptRetries: v.GetInt("RECEIPT_MAX_RETRIES"),
			StatusCacheTTL: v.GetDuration("STATUS_CACHE_TTL"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:             v.GetInt("RATE_LIMIT_BURST"),
		},
		Notify: NotifyConfig{
			Channels:     parseList(v.GetString("NOTIFY_CHANNELS")),
			SNSRegion:    v.GetString("SNS_REGION"),
			AWSAccessKey: v.GetString("AWS_ACCESS_KEY_ID"),
			AWSSecretKey: v.GetString("AWS_SECRET_ACCESS_KEY"),
			SMTPHost:     v.GetString("SMTP_HOST"),
			SMTPPort:     v.GetString("SMTP_PORT"),
			SMTPFrom:     v.GetString("SMTP_FROM"),
			SMTPUsername: v.GetString("SMTP_USERNAME"),
			SMTPPassword: v.GetString("SMTP_PASSWORD"),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	// Validate database config
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Port == "" {
		return fmt.Errorf("DB_PORT is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Database.PoolMin < 0 {
		return fmt.Errorf("DB_POOL_MIN must be non-negative")
	}
	if c.Database.PoolMax < 1 {
		return fmt.Errorf("DB_POOL_MAX must be at least 1")
	}
	if c.Database.PoolMin > c.Database.PoolMax {
		return fmt.Errorf("DB_POOL_MIN must be less than or equal to DB_POOL_MAX")
	}

	// Validate CORS config
	if len(c.CORS.Origins) == 0 {
		return fmt.Errorf("CORS_ORIGINS is required")
	}

	if c.Redis.Enabled && (c.Redis.Host == "" || c.Redis.Port == "") {
		return fmt.Errorf("REDIS_HOST and REDIS_PORT are required when REDIS_ENABLED is true")
	}

	if c.Session.CookieName == "" {
		return fmt.Errorf("SESSION_COOKIE_NAME is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}

	// Validate verification limits
	if c.Verification.CodeTTL <= 0 {
		return fmt.Errorf("VERIFICATION_CODE_TTL must be positive")
	}
	if c.Verification.MaxAttempts < 1 {
		return fmt.Errorf("VERIFICATION_MAX_ATTEMPTS must be at least 1")
	}
	if c.Verification.ReceiptRetries < 1 {
		return fmt.Errorf("RECEIPT_MAX_RETRIES must be at least 1")
	}

	if c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive")
	}
	if c.RateLimit.Burst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be at least 1")
	}

	// Validate notification channels
	if len(c.Notify.Channels) == 0 {
		return fmt.Errorf("NOTIFY_CHANNELS is required")
	}
	for _, ch := range c.Notify.Channels {
		switch ch {
		case ChannelLog, ChannelSMS, ChannelEmail:
		default:
			return fmt.Errorf("NOTIFY_CHANNELS contains unknown channel %q", ch)
		}
	}

	return nil
}

// HasChannel reports whether the given notification channel is enabled.
func (n NotifyConfig) HasChannel(name string) bool {
	for _, ch := range n.Channels {
		if ch == name {
			return true
		}
	}
	return false
}

// parseList splits a comma-separated string into a slice of trimmed, non-empty values.
func parseList(s string) []string {
	if s == "" {
		return []string{}
	}

	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
