// Package features implements a process-wide feature-flag registry, used
// for toggles that need to flip at runtime without a redeploy (as opposed to
// pkg/config's startup-time policy flags).
package features

import (
	"fmt"
	"os"
	"strconv"
	"sync"
)

// Feature names a togglable behavior.
type Feature string

const (
	// FeatureAttestationEnforcement gates whether the reconciler blocks a
	// host's path to Ready on a non-Measured attestation verdict.
	FeatureAttestationEnforcement Feature = "attestation_enforcement"
	// FeatureDPUReprovisionSync gates the cross-DPU synchronization barrier
	// during reprovisioning; disabling it is a break-glass escape hatch.
	FeatureDPUReprovisionSync Feature = "dpu_reprovision_sync"
	// FeatureRebootEscalation gates the Reboot->Reboot->PowerOff->PowerOn
	// escalation ladder; disabling it leaves a stuck host for operator
	// intervention instead of escalating automatically.
	FeatureRebootEscalation Feature = "reboot_escalation"
)

type state struct {
	defaultValue bool
	current      bool
}

var (
	mu         sync.RWMutex
	featureMap = map[Feature]*state{}
)

// RegisterFeature adds a feature with its default value. It panics on a
// duplicate registration, matching the teacher's fail-fast init-time
// contract.
func RegisterFeature(f Feature, defaultValue bool) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := featureMap[f]; exists {
		panic(fmt.Sprintf("features: %q already registered", f))
	}
	featureMap[f] = &state{defaultValue: defaultValue, current: defaultValue}
}

func init() {
	RegisterFeature(FeatureAttestationEnforcement, false)
	RegisterFeature(FeatureDPUReprovisionSync, true)
	RegisterFeature(FeatureRebootEscalation, true)
}

// IsEnabled reports the current value of f. An unregistered feature is
// always disabled.
func IsEnabled(f Feature) bool {
	mu.RLock()
	defer mu.RUnlock()
	s, ok := featureMap[f]
	if !ok {
		return false
	}
	return s.current
}

// SetEnabled overrides f's current value.
func SetEnabled(f Feature, enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	s, ok := featureMap[f]
	if !ok {
		return
	}
	s.current = enabled
}

// ResetToDefault restores f to its registered default.
func ResetToDefault(f Feature) {
	mu.Lock()
	defer mu.Unlock()
	s, ok := featureMap[f]
	if !ok {
		return
	}
	s.current = s.defaultValue
}

// ResetAllToDefault restores every registered feature to its default.
func ResetAllToDefault() {
	mu.Lock()
	defer mu.Unlock()
	for _, s := range featureMap {
		s.current = s.defaultValue
	}
}

// LoadFromEnv applies CARBIDE_FEATURE_<NAME>=true|false overrides for every
// registered feature.
func LoadFromEnv() error {
	mu.Lock()
	defer mu.Unlock()
	for f, s := range featureMap {
		envVar := "CARBIDE_FEATURE_" + toEnvName(f)
		v, ok := os.LookupEnv(envVar)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envVar, err)
		}
		s.current = b
	}
	return nil
}

// ListFeatures returns every registered feature's current value.
func ListFeatures() map[Feature]bool {
	mu.RLock()
	defer mu.RUnlock()
	out := make(map[Feature]bool, len(featureMap))
	for f, s := range featureMap {
		out[f] = s.current
	}
	return out
}

func toEnvName(f Feature) string {
	out := make([]byte, 0, len(f))
	for _, r := range string(f) {
		if r >= 'a' && r <= 'z' {
			out = append(out, byte(r-'a'+'A'))
		} else {
			out = append(out, byte(r))
		}
	}
	return string(out)
}
