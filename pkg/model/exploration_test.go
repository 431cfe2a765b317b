package model

import "testing"

func TestExploredManagedHostIsPaired(t *testing.T) {
	paired := ExploredManagedHost{
		Dpus: []ExploredDpu{{HostPF: "pf0"}},
	}
	if !paired.IsPaired() {
		t.Fatalf("a candidate with a DPU and no blockers should be paired")
	}

	blocked := ExploredManagedHost{
		Dpus:      []ExploredDpu{{HostPF: "pf0"}},
		BlockedBy: []PairingBlockerReason{PairingBlockerDpuNicModeUnknown},
	}
	if blocked.IsPaired() {
		t.Fatalf("a candidate with an unresolved blocker must not be paired")
	}

	noDpu := ExploredManagedHost{}
	if noDpu.IsPaired() {
		t.Fatalf("a candidate with no DPUs must not be paired")
	}
}
