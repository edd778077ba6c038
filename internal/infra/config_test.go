package infra

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BILLING_MODE", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.BillingMode != BillingModeCredits {
		t.Fatalf("BillingMode = %q, want credits default", cfg.BillingMode)
	}
	if cfg.DailyQuotaLimit != 5 {
		t.Fatalf("DailyQuotaLimit = %d, want 5", cfg.DailyQuotaLimit)
	}
	if cfg.GuestTrialTTL != 24*time.Hour {
		t.Fatalf("GuestTrialTTL = %v, want 24h", cfg.GuestTrialTTL)
	}
	if cfg.MaxUploadBytes != 15*1024*1024 {
		t.Fatalf("MaxUploadBytes = %d, want 15MB", cfg.MaxUploadBytes)
	}
	if cfg.StorageBaseURL != "http://localhost:8080/static" {
		t.Fatalf("StorageBaseURL = %q", cfg.StorageBaseURL)
	}
	if cfg.DBMaxConns != 10 || cfg.DBMinConns != 1 {
		t.Fatalf("pool sizing = %d/%d, want 10/1", cfg.DBMaxConns, cfg.DBMinConns)
	}
}

func TestLoadConfigBillingMode(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BILLING_MODE", "daily_quota")
	t.Setenv("DAILY_QUOTA_LIMIT", "12")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.BillingMode != BillingModeDailyQuota {
		t.Fatalf("BillingMode = %q", cfg.BillingMode)
	}
	if cfg.DailyQuotaLimit != 12 {
		t.Fatalf("DailyQuotaLimit = %d, want 12", cfg.DailyQuotaLimit)
	}
}

func TestLoadConfigRejectsUnknownBillingMode(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BILLING_MODE", "pay_per_view")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("LoadConfig accepted unknown billing mode")
	}
}

func TestLoadConfigRequiredVars(t *testing.T) {
	t.Run("missing database url", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		t.Setenv("JWT_SECRET", "test-secret")
		if _, err := LoadConfig(); err == nil {
			t.Fatalf("LoadConfig accepted empty DATABASE_URL")
		}
	})
	t.Run("missing jwt secret", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://example")
		t.Setenv("JWT_SECRET", "")
		if _, err := LoadConfig(); err == nil {
			t.Fatalf("LoadConfig accepted empty JWT_SECRET")
		}
	})
}

func TestLoadConfigCORSList(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://glow.example.com, http://localhost:3000 ,")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	want := []string{"https://glow.example.com", "http://localhost:3000"}
	if len(cfg.CORSOrigins) != len(want) {
		t.Fatalf("CORSOrigins = %#v, want %#v", cfg.CORSOrigins, want)
	}
	for i := range want {
		if cfg.CORSOrigins[i] != want[i] {
			t.Fatalf("CORSOrigins[%d] = %q, want %q", i, cfg.CORSOrigins[i], want[i])
		}
	}
}
