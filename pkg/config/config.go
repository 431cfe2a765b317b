// Package config holds Carbide's process configuration: connection
// parameters, retry/backoff tuning, and the site-wide policy flags that
// shape how the reconciler and exploration engine behave.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// RedfishConfig tunes how the Redfish client talks to BMCs.
type RedfishConfig struct {
	Scheme             string
	Port               int
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// ReconcilerConfig tunes the root iteration cadence over managed hosts.
type ReconcilerConfig struct {
	RequeueAfter        time.Duration
	RequeueAfterError   time.Duration
	MaxConcurrentHosts  int
	StuckStateThreshold time.Duration
}

// ExplorationConfig tunes the site exploration and preingestion engine.
type ExplorationConfig struct {
	ScanInterval        time.Duration
	MaxConcurrentProbes int
	LeaseDuration        time.Duration
	UnauthorizedCooldown time.Duration
}

// RetryConfig is the default backoff schedule; individual call sites may
// override it (see pkg/retry).
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int
	MaxElapsedTime  time.Duration
}

// BootConfig tunes PXE/virtual-media boot instruction delivery.
type BootConfig struct {
	ISOMountTimeout time.Duration
	PXETemplatePath string
}

// PolicyConfig carries the site-wide policy flags named by the design:
// whether DPF orchestrates DPU lifecycle, whether firmware is refreshed at
// various lifecycle points, and whether secure boot / attestation are
// mandatory for a host to reach Ready.
type PolicyConfig struct {
	DPFEnabled                   bool
	FirmwareUpdateOnInitialIngest bool
	FirmwareUpdateOnReprovision   bool
	SecureBootRequired            bool
	AttestationRequired           bool
}

// Config is the top-level process configuration.
type Config struct {
	Redfish     RedfishConfig
	Reconciler  ReconcilerConfig
	Exploration ExplorationConfig
	Retry       RetryConfig
	Boot        BootConfig
	Policy      PolicyConfig
}

// DefaultConfig returns the baseline configuration before environment
// overrides are applied.
func DefaultConfig() Config {
	return Config{
		Redfish: RedfishConfig{
			Scheme:             "https",
			Port:               443,
			Timeout:            30 * time.Second,
			InsecureSkipVerify: false,
		},
		Reconciler: ReconcilerConfig{
			RequeueAfter:        30 * time.Second,
			RequeueAfterError:   1 * time.Minute,
			MaxConcurrentHosts:  16,
			StuckStateThreshold: 15 * time.Minute,
		},
		Exploration: ExplorationConfig{
			ScanInterval:         1 * time.Minute,
			MaxConcurrentProbes:  8,
			LeaseDuration:        5 * time.Minute,
			UnauthorizedCooldown: 24 * time.Hour,
		},
		Retry: RetryConfig{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     30 * time.Second,
			Multiplier:      2.0,
			MaxAttempts:     10,
			MaxElapsedTime:  5 * time.Minute,
		},
		Boot: BootConfig{
			ISOMountTimeout: 2 * time.Minute,
			PXETemplatePath: "",
		},
		Policy: PolicyConfig{
			DPFEnabled:                    false,
			FirmwareUpdateOnInitialIngest: true,
			FirmwareUpdateOnReprovision:   true,
			SecureBootRequired:            false,
			AttestationRequired:           false,
		},
	}
}

// LoadConfig builds the default config and applies environment overrides.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := applyEnvironmentOverrides(&cfg); err != nil {
		return Config{}, fmt.Errorf("loading config from environment: %w", err)
	}
	return cfg, nil
}

func applyEnvironmentOverrides(cfg *Config) error {
	if v, ok := os.LookupEnv("CARBIDE_REDFISH_SCHEME"); ok {
		cfg.Redfish.Scheme = v
	}
	if v, ok := os.LookupEnv("CARBIDE_REDFISH_PORT"); ok {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CARBIDE_REDFISH_PORT: %w", err)
		}
		cfg.Redfish.Port = p
	}
	if v, ok := os.LookupEnv("CARBIDE_REDFISH_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CARBIDE_REDFISH_TIMEOUT: %w", err)
		}
		cfg.Redfish.Timeout = d
	}
	if v, ok := os.LookupEnv("CARBIDE_REDFISH_INSECURE_SKIP_VERIFY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CARBIDE_REDFISH_INSECURE_SKIP_VERIFY: %w", err)
		}
		cfg.Redfish.InsecureSkipVerify = b
	}

	if v, ok := os.LookupEnv("CARBIDE_RECONCILER_REQUEUE_AFTER"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CARBIDE_RECONCILER_REQUEUE_AFTER: %w", err)
		}
		cfg.Reconciler.RequeueAfter = d
	}
	if v, ok := os.LookupEnv("CARBIDE_RECONCILER_REQUEUE_AFTER_ERROR"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CARBIDE_RECONCILER_REQUEUE_AFTER_ERROR: %w", err)
		}
		cfg.Reconciler.RequeueAfterError = d
	}
	if v, ok := os.LookupEnv("CARBIDE_RECONCILER_MAX_CONCURRENT_HOSTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CARBIDE_RECONCILER_MAX_CONCURRENT_HOSTS: %w", err)
		}
		cfg.Reconciler.MaxConcurrentHosts = n
	}

	if v, ok := os.LookupEnv("CARBIDE_RETRY_MAX_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CARBIDE_RETRY_MAX_ATTEMPTS: %w", err)
		}
		cfg.Retry.MaxAttempts = n
	}
	if v, ok := os.LookupEnv("CARBIDE_RETRY_MAX_ELAPSED_TIME"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CARBIDE_RETRY_MAX_ELAPSED_TIME: %w", err)
		}
		cfg.Retry.MaxElapsedTime = d
	}

	if v, ok := os.LookupEnv("CARBIDE_POLICY_DPF_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CARBIDE_POLICY_DPF_ENABLED: %w", err)
		}
		cfg.Policy.DPFEnabled = b
	}
	if v, ok := os.LookupEnv("CARBIDE_POLICY_FIRMWARE_UPDATE_ON_INITIAL_INGEST"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CARBIDE_POLICY_FIRMWARE_UPDATE_ON_INITIAL_INGEST: %w", err)
		}
		cfg.Policy.FirmwareUpdateOnInitialIngest = b
	}
	if v, ok := os.LookupEnv("CARBIDE_POLICY_FIRMWARE_UPDATE_ON_REPROVISION"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CARBIDE_POLICY_FIRMWARE_UPDATE_ON_REPROVISION: %w", err)
		}
		cfg.Policy.FirmwareUpdateOnReprovision = b
	}
	if v, ok := os.LookupEnv("CARBIDE_POLICY_SECURE_BOOT_REQUIRED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CARBIDE_POLICY_SECURE_BOOT_REQUIRED: %w", err)
		}
		cfg.Policy.SecureBootRequired = b
	}
	if v, ok := os.LookupEnv("CARBIDE_POLICY_ATTESTATION_REQUIRED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CARBIDE_POLICY_ATTESTATION_REQUIRED: %w", err)
		}
		cfg.Policy.AttestationRequired = b
	}

	return nil
}
