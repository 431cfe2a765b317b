package features

import "testing"

func TestBuiltinFeatureDefaults(t *testing.T) {
	ResetAllToDefault()
	if IsEnabled(FeatureAttestationEnforcement) {
		t.Fatalf("attestation enforcement should default to disabled")
	}
	if !IsEnabled(FeatureDPUReprovisionSync) {
		t.Fatalf("reprovision sync should default to enabled")
	}
	if !IsEnabled(FeatureRebootEscalation) {
		t.Fatalf("reboot escalation should default to enabled")
	}
}

func TestSetEnabledAndResetToDefault(t *testing.T) {
	ResetAllToDefault()
	SetEnabled(FeatureAttestationEnforcement, true)
	if !IsEnabled(FeatureAttestationEnforcement) {
		t.Fatalf("expected the override to take effect")
	}
	ResetToDefault(FeatureAttestationEnforcement)
	if IsEnabled(FeatureAttestationEnforcement) {
		t.Fatalf("expected the feature back at its registered default")
	}
}

func TestUnregisteredFeatureIsAlwaysDisabled(t *testing.T) {
	if IsEnabled(Feature("does-not-exist")) {
		t.Fatalf("an unregistered feature must report disabled")
	}
	SetEnabled(Feature("does-not-exist"), true)
	if IsEnabled(Feature("does-not-exist")) {
		t.Fatalf("SetEnabled on an unregistered feature must be a no-op")
	}
}

func TestRegisterFeatureDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic registering an already-registered feature")
		}
	}()
	RegisterFeature(FeatureRebootEscalation, true)
}

func TestListFeaturesReflectsOverrides(t *testing.T) {
	ResetAllToDefault()
	SetEnabled(FeatureDPUReprovisionSync, false)
	defer ResetAllToDefault()

	got := ListFeatures()
	if got[FeatureDPUReprovisionSync] {
		t.Fatalf("expected the override to be reflected in ListFeatures")
	}
	if _, ok := got[FeatureRebootEscalation]; !ok {
		t.Fatalf("expected every registered feature to appear in ListFeatures")
	}
}
