package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "LINX_HOST", "LINX_PORT", "DELIVERY_TIMEOUT_SECONDS",
		"SCHEDULER_INTERVAL_SECONDS", "MAX_DELIVERY_ATTEMPTS", "RETRY_BACKOFF_MINUTES",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "3000" {
		t.Fatalf("expected default port 3000, got %s", cfg.Port)
	}
	if cfg.LinxURL() != "http://192.168.1.100:5050" {
		t.Fatalf("unexpected default linx url: %s", cfg.LinxURL())
	}
	if cfg.DeliveryTimeoutSeconds != 10 {
		t.Fatalf("expected 10s delivery timeout, got %d", cfg.DeliveryTimeoutSeconds)
	}
	if cfg.SchedulerIntervalSeconds != 30 {
		t.Fatalf("expected 30s scheduler interval, got %d", cfg.SchedulerIntervalSeconds)
	}
	if cfg.MaxDeliveryAttempts != 5 {
		t.Fatalf("expected 5 max attempts, got %d", cfg.MaxDeliveryAttempts)
	}
	if cfg.RetryBackoffMinutes != 5 {
		t.Fatalf("expected 5m base backoff, got %d", cfg.RetryBackoffMinutes)
	}
}

func TestPositiveEnvRejectsGarbage(t *testing.T) {
	t.Setenv("MAX_DELIVERY_ATTEMPTS", "-3")
	t.Setenv("RETRY_BACKOFF_MINUTES", "abc")

	cfg := Load()
	if cfg.MaxDeliveryAttempts != 5 {
		t.Fatalf("expected fallback 5, got %d", cfg.MaxDeliveryAttempts)
	}
	if cfg.RetryBackoffMinutes != 5 {
		t.Fatalf("expected fallback 5, got %d", cfg.RetryBackoffMinutes)
	}
}
