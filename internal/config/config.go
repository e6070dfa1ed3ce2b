// Package config reads the application settings from environment variables.
//
// Settings are loaded once at startup into a Config and treated as
// immutable afterwards. Optional values that are missing or unparsable fall
// back to their defaults; missing required values make Load fail.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// minSecretLength matches the check in auth.NewTokenService.
const minSecretLength = 16

// Config holds every setting the server needs.
type Config struct {
	// Server
	Port int

	// Database
	DBPath string

	// Session
	SessionSecret string
	SessionTTL    time.Duration
	CookieSecure  bool

	// Price provider
	PriceAPIURL       string
	PriceVsCurrency   string
	PricePageSize     int
	PriceFetchTimeout time.Duration
	PriceSyncInterval time.Duration

	// Rate limit (requests per minute per client IP)
	SignInRatePerMin int
	// TrustProxyHeaders honors X-Forwarded-For / X-Real-IP. Only enable it
	// behind a reverse proxy that overwrites those headers.
	TrustProxyHeaders bool

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads Config from the environment.
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	// JWT_SECRET is the older name; accept it so existing deployments keep working.
	cfg.SessionSecret = getEnvString("SESSION_SECRET", os.Getenv("JWT_SECRET"))
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}
	if len(cfg.SessionSecret) < minSecretLength {
		return nil, fmt.Errorf("SESSION_SECRET must be at least %d characters", minSecretLength)
	}

	// Optional fields with defaults
	cfg.Port = getEnvInt("PORT", 8080)
	cfg.DBPath = getEnvString("DB_PATH", "data/coins.db")
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", 24*time.Hour)
	cfg.CookieSecure = getEnvBool("COOKIE_SECURE", false)
	cfg.PriceAPIURL = getEnvString("PRICE_API_URL", "https://api.coingecko.com/api/v3")
	cfg.PriceVsCurrency = getEnvString("PRICE_VS_CURRENCY", "usd")
	cfg.PricePageSize = getEnvInt("PRICE_PAGE_SIZE", 100)
	cfg.PriceFetchTimeout = getEnvDuration("PRICE_FETCH_TIMEOUT", 10*time.Second)
	cfg.PriceSyncInterval = getEnvDuration("PRICE_SYNC_INTERVAL", 10*time.Minute)
	cfg.SignInRatePerMin = getEnvInt("SIGNIN_RATE_PER_MIN", 10)
	cfg.TrustProxyHeaders = getEnvBool("TRUST_PROXY_HEADERS", false)
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))
	cfg.LogFormat = strings.ToLower(getEnvString("LOG_FORMAT", "text"))

	// Values that parse but make no sense fall back too.
	if cfg.Port <= 0 || cfg.Port > 65535 {
		cfg.Port = 8080
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.PriceSyncInterval <= 0 {
		cfg.PriceSyncInterval = 10 * time.Minute
	}
	if cfg.PriceFetchTimeout <= 0 {
		cfg.PriceFetchTimeout = 10 * time.Second
	}
	if cfg.SignInRatePerMin <= 0 {
		cfg.SignInRatePerMin = 10
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
