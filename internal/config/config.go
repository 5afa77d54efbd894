package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string // PostgreSQL; SQLite is used when empty
	SQLitePath  string
	RedisURL    string

	// Auth
	JWTSecret    string
	JWTPublicKey string // PEM, RS256; takes precedence over JWTSecret
	JWTIssuer    string

	WebhookSecret string // svix "whsec_..." secret for identity events

	// Presence sweep; an empty cron expression disables it
	PresenceSweepCron  string
	PresenceStaleAfter time.Duration

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations

	CORSOrigins []string
}

// Load reads configuration from environment variables, loading a .env file
// first when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         getEnv("SQLITE_PATH", "./data/tarschat.db"),
		RedisURL:           os.Getenv("REDIS_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTPublicKey:       os.Getenv("JWT_PUBLIC_KEY"),
		JWTIssuer:          os.Getenv("JWT_ISSUER"),
		WebhookSecret:      os.Getenv("WEBHOOK_SECRET"),
		PresenceSweepCron:  getEnv("PRESENCE_SWEEP_CRON", "* * * * *"),
		AutoBlockEnabled:   getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
		RateLimitWhitelist: splitList(os.Getenv("RATE_LIMIT_WHITELIST")),
		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", "*")),
	}

	// PRESENCE_SWEEP_CRON set to "off" disables the sweep.
	if v, ok := os.LookupEnv("PRESENCE_SWEEP_CRON"); ok && (v == "" || v == "off") {
		cfg.PresenceSweepCron = ""
	}
	if cfg.PresenceSweepCron != "" && !gronx.IsValid(cfg.PresenceSweepCron) {
		return nil, fmt.Errorf("invalid PRESENCE_SWEEP_CRON %q", cfg.PresenceSweepCron)
	}

	stale, err := time.ParseDuration(getEnv("PRESENCE_STALE_AFTER", "90s"))
	if err != nil {
		return nil, fmt.Errorf("invalid PRESENCE_STALE_AFTER: %w", err)
	}
	if stale <= 0 {
		return nil, errors.New("PRESENCE_STALE_AFTER must be positive")
	}
	cfg.PresenceStaleAfter = stale

	if cfg.IsProduction() {
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required in production")
		}
		if cfg.JWTSecret == "" && cfg.JWTPublicKey == "" {
			return nil, errors.New("JWT_SECRET or JWT_PUBLIC_KEY is required in production")
		}
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitList parses a comma-separated list, dropping blank entries.
func splitList(s string) []string {
	var out []string
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
