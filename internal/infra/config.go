package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// BillingMode selects the billing regime applied to every owned job. It is
// resolved once at startup and injected into the orchestrator; nothing reads
// it ambiently at request time.
type BillingMode string

const (
	BillingModeCredits    BillingMode = "credits"
	BillingModeDailyQuota BillingMode = "daily_quota"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	DBMaxConns         int
	DBMinConns         int
	RedisURL           string
	JWTSecret          string
	BillingMode        BillingMode
	DailyQuotaLimit    int
	GuestTrialTTL      time.Duration
	StoragePath        string
	StorageBaseURL     string
	MaxUploadBytes     int64
	TransformerBaseURL string
	TransformerAPIKey  string
	TransformerTimeout time.Duration
	GeoIPDBPath        string
	CORSOrigins        []string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		DBMaxConns:         getEnvInt("DB_MAX_CONNS", 10),
		DBMinConns:         getEnvInt("DB_MIN_CONNS", 1),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		BillingMode:        BillingMode(getEnv("BILLING_MODE", string(BillingModeCredits))),
		DailyQuotaLimit:    getEnvInt("DAILY_QUOTA_LIMIT", 5),
		GuestTrialTTL:      time.Hour * time.Duration(getEnvInt("GUEST_TRIAL_TTL_HOURS", 24)),
		StoragePath:        getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:     getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_MB", 15)) * 1024 * 1024,
		TransformerBaseURL: getEnv("TRANSFORMER_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		TransformerAPIKey:  os.Getenv("TRANSFORMER_API_KEY"),
		TransformerTimeout: time.Second * time.Duration(getEnvInt("TRANSFORMER_TIMEOUT_SECONDS", 120)),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		CORSOrigins:        splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	switch cfg.BillingMode {
	case BillingModeCredits, BillingModeDailyQuota:
	default:
		return nil, fmt.Errorf("BILLING_MODE must be %q or %q", BillingModeCredits, BillingModeDailyQuota)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
