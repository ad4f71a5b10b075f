package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadRequiresInvoiceSecret(t *testing.T) {
	t.Setenv("INVOICE_SIGNING_SECRET", "placeholder")
	os.Unsetenv("INVOICE_SIGNING_SECRET")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error when INVOICE_SIGNING_SECRET is missing")
	}
}

func TestLoadDefaultsAndNested(t *testing.T) {
	t.Setenv("INVOICE_SIGNING_SECRET", "s3cret")
	t.Setenv("QUEUE_MAX_ATTEMPTS", "7")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.StoreDriver != "mysql" || cfg.Port != "8080" {
		t.Fatalf("unexpected defaults: driver=%s port=%s", cfg.StoreDriver, cfg.Port)
	}
	if cfg.Queue.MaxAttempts != 7 {
		t.Fatalf("QUEUE_MAX_ATTEMPTS not applied: %d", cfg.Queue.MaxAttempts)
	}
	if cfg.Queue.Name != "booking.tasks" {
		t.Fatalf("unexpected queue name %q", cfg.Queue.Name)
	}
	if cfg.Twilio.AccountSID != "AC123" {
		t.Fatalf("TWILIO_ACCOUNT_SID not applied: %q", cfg.Twilio.AccountSID)
	}
	if cfg.InvoiceLinkTTL != 720*time.Hour {
		t.Fatalf("unexpected invoice link ttl %s", cfg.InvoiceLinkTTL)
	}
}

func TestLoadRejectsUnknownTimezone(t *testing.T) {
	t.Setenv("INVOICE_SIGNING_SECRET", "s3cret")
	t.Setenv("APP_TIMEZONE", "Mars/Olympus")
	if _, err := Load(); err == nil {
		t.Fatalf("expected timezone error")
	}
}

func TestRateLimitNormalized(t *testing.T) {
	cfg := RateLimitConfig{Capacity: 0, RefillTokens: 0, RefillInterval: 0, TTL: time.Second}.normalized()
	if cfg.Capacity != 1 || cfg.RefillTokens != 1 {
		t.Fatalf("capacity/refill not clamped: %+v", cfg)
	}
	if cfg.RefillInterval != time.Second {
		t.Fatalf("refill interval not defaulted: %s", cfg.RefillInterval)
	}
	if cfg.TTL != 5*time.Second {
		t.Fatalf("ttl should be at least five refill intervals, got %s", cfg.TTL)
	}
}

func TestLoadCacheConfigMethods(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	cfg := LoadCacheConfig()
	m := cfg.MethodSet()
	if !m["GET"] || !m["HEAD"] || len(m) != 2 {
		t.Fatalf("unexpected method set %v", m)
	}
}
