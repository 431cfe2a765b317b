package model

import "testing"

func TestMergedUnionsMergeOverrides(t *testing.T) {
	reports := []HealthReport{
		{Alerts: []Alert{{Probe: "disk"}}, Overrides: []HealthOverride{
			{Name: "extra", Mode: OverrideModeMerge, Alerts: []Alert{{Probe: "nic"}}},
		}},
	}
	merged := Merged(reports)
	if len(merged) != 2 {
		t.Fatalf("got %d alerts, want 2 (live + merge override)", len(merged))
	}
}

func TestMergedReplaceSubstitutesEntirely(t *testing.T) {
	reports := []HealthReport{
		{Alerts: []Alert{{Probe: "disk"}}, Overrides: []HealthOverride{
			{Name: HealthOverrideHostUpdate, Mode: OverrideModeReplace, Alerts: []Alert{{Probe: "replacement"}}},
		}},
	}
	merged := Merged(reports)
	if len(merged) != 1 || merged[0].Probe != "replacement" {
		t.Fatalf("got %+v, want only the Replace override's alerts", merged)
	}
}

func TestHasHostUpdateOverride(t *testing.T) {
	r := HealthReport{Overrides: []HealthOverride{{Name: HealthOverrideHostUpdate, Mode: OverrideModeMerge}}}
	if !r.HasHostUpdateOverride() {
		t.Fatalf("expected the host-update override to be detected")
	}
	if (HealthReport{}).HasHostUpdateOverride() {
		t.Fatalf("expected no host-update override on an empty report")
	}
}

func TestBlocksAllocation(t *testing.T) {
	blocking := []Alert{{Classifications: []AlertClassification{AlertClassificationPreventAllocations}}}
	if !BlocksAllocation(blocking) {
		t.Fatalf("expected PreventAllocations to block allocation")
	}
	nonBlocking := []Alert{{Classifications: []AlertClassification{AlertClassificationWarning}}}
	if BlocksAllocation(nonBlocking) {
		t.Fatalf("a Warning-only alert must not block allocation")
	}
}
