package config

import "testing"

func TestLoadConfigAppliesEnvironmentOverrides(t *testing.T) {
	t.Setenv("CARBIDE_REDFISH_SCHEME", "http")
	t.Setenv("CARBIDE_RECONCILER_MAX_CONCURRENT_HOSTS", "32")
	t.Setenv("CARBIDE_POLICY_DPF_ENABLED", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Redfish.Scheme != "http" {
		t.Fatalf("got scheme %q, want http", cfg.Redfish.Scheme)
	}
	if cfg.Reconciler.MaxConcurrentHosts != 32 {
		t.Fatalf("got MaxConcurrentHosts %d, want 32", cfg.Reconciler.MaxConcurrentHosts)
	}
	if !cfg.Policy.DPFEnabled {
		t.Fatalf("expected DPFEnabled override to take effect")
	}
	if cfg.Redfish.Port != DefaultConfig().Redfish.Port {
		t.Fatalf("unset fields should retain their default")
	}
}

func TestLoadConfigRejectsMalformedOverride(t *testing.T) {
	t.Setenv("CARBIDE_REDFISH_PORT", "not-a-number")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected an error from a malformed CARBIDE_REDFISH_PORT")
	}
}

func TestDefaultConfigIsPopulated(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Retry.MaxAttempts == 0 {
		t.Fatalf("expected a non-zero default retry attempt budget")
	}
	if cfg.Policy.SecureBootRequired {
		t.Fatalf("secure boot enforcement should default to off")
	}
}
