// config.go

// Environment variable loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MGallo-Code/tgbridge/internal/telegram"
	"github.com/joho/godotenv"
)

// EnvProduction is the APP_ENV value that forbids verification bypass.
const EnvProduction = "production"

// Config holds all env configuration vars for tgbridge. Read once at startup.
type Config struct {
	Port     string
	LogLevel slog.Level
	AppEnv   string

	// PublicURL is this service's externally visible base URL, used to build the
	// widget callback. Empty means derive it from each request.
	PublicURL string

	// BackendURL is the token exchange backend. Empty disables POST /auth/telegram/exchange.
	BackendURL      string
	ExchangeTimeout time.Duration

	// Telegram bot. BotToken empty + VerifyBypass false rejects every assertion.
	BotToken     telegram.SecretToken
	BotName      string
	VerifyBypass bool

	// FallbackRedirect is the deep-link start target when the caller gives none.
	FallbackRedirect string

	// Optional infrastructure. Empty disables the audit log / rate limiting.
	DatabaseURL string
	RedisURL    string

	// Rate limit policy for callback/exchange attempts per client IP.
	// Defaults: max=30, window=1m, lockout=5m.
	RateAuthMax     int
	RateAuthWindow  time.Duration
	RateAuthLockout time.Duration

	// AuditRetention is how long login events are kept. Default 90 days.
	AuditRetention time.Duration
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// SigningContext builds the immutable signing context for this config.
func (c *Config) SigningContext() telegram.SigningContext {
	if c.VerifyBypass {
		return telegram.BypassSigningContext()
	}
	return telegram.NewSigningContext(string(c.BotToken))
}

// LoadConfig loads .env (if present), reads environment variables and returns a validated Config.
func LoadConfig() (*Config, error) {
	// Real env vars win over .env; a missing file is fine.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{}

	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		cfg.Port = "7865"
	}

	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		cfg.LogLevel = slog.LevelInfo
	}

	cfg.AppEnv = strings.ToLower(os.Getenv("APP_ENV"))
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}

	cfg.PublicURL = strings.TrimRight(os.Getenv("PUBLIC_URL"), "/")
	if cfg.PublicURL != "" {
		if err := checkURL("PUBLIC_URL", cfg.PublicURL, cfg.IsProduction()); err != nil {
			return nil, err
		}
	}

	cfg.BackendURL = strings.TrimRight(os.Getenv("BACKEND_URL"), "/")
	if cfg.BackendURL != "" {
		if err := checkURL("BACKEND_URL", cfg.BackendURL, false); err != nil {
			return nil, err
		}
	}
	cfg.ExchangeTimeout = envDuration("EXCHANGE_TIMEOUT", 5*time.Second)

	cfg.BotToken = telegram.SecretToken(os.Getenv("TELEGRAM_BOT_TOKEN"))
	cfg.BotName = strings.TrimPrefix(os.Getenv("TELEGRAM_BOT_NAME"), "@")
	if cfg.BotName != "" && !telegram.ValidBotName(cfg.BotName) {
		return nil, fmt.Errorf("TELEGRAM_BOT_NAME %q is not a valid bot username", cfg.BotName)
	}

	// Bypass needs a parseable true value and is refused in production.
	cfg.VerifyBypass = envBool("TELEGRAM_VERIFY_BYPASS", false)
	if cfg.VerifyBypass && cfg.IsProduction() {
		return nil, fmt.Errorf("TELEGRAM_VERIFY_BYPASS cannot be enabled when APP_ENV=production")
	}
	if cfg.VerifyBypass && cfg.BotToken != "" {
		slog.Warn("TELEGRAM_VERIFY_BYPASS is set; TELEGRAM_BOT_TOKEN will be ignored")
	}

	cfg.FallbackRedirect = os.Getenv("FALLBACK_REDIRECT_URL")
	if cfg.FallbackRedirect == "" {
		cfg.FallbackRedirect = "https://dramz.tv"
	}
	if err := checkURL("FALLBACK_REDIRECT_URL", cfg.FallbackRedirect, cfg.IsProduction()); err != nil {
		return nil, err
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")

	// Fall back to defaults on bad values so a typo can't disable rate limiting.
	cfg.RateAuthMax = envInt("RATE_AUTH_MAX", 30)
	cfg.RateAuthWindow = envDuration("RATE_AUTH_WINDOW", time.Minute)
	cfg.RateAuthLockout = envDuration("RATE_AUTH_LOCKOUT", 5*time.Minute)

	cfg.AuditRetention = envDuration("AUDIT_RETENTION", 90*24*time.Hour)

	return cfg, nil
}

// checkURL requires an absolute http(s) URL, and https when requireHTTPS is set.
func checkURL(key, raw string, requireHTTPS bool) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s must be an absolute http(s) URL", key)
	}
	if requireHTTPS && u.Scheme != "https" {
		return fmt.Errorf("%s must use https in production", key)
	}
	return nil
}

// envInt reads an env var as int, returning def if missing or unparseable.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

// envDuration reads an env var as time.Duration, returning def if missing or unparseable.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

// envBool reads an env var as bool, returning def if missing or unparseable.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}
