package reconciler

import (
	"testing"

	"github.com/carbide-fleet/carbide/pkg/model"
)

func TestDecideInstanceHappyPath(t *testing.T) {
	s, wait, errDetail := DecideInstance(model.InstanceStateBootingWithDiscoveryImage, InstanceSignals{DiscoveryImageBooted: true})
	if wait != "" || errDetail != "" || s != model.InstanceStateBootingTenantOS {
		t.Fatalf("got state=%v wait=%q err=%q, want BootingTenantOS", s, wait, errDetail)
	}

	s, wait, errDetail = DecideInstance(s, InstanceSignals{TenantOSBooted: true})
	if wait != "" || errDetail != "" || s != model.InstanceStateConfiguring {
		t.Fatalf("got state=%v wait=%q err=%q, want Configuring", s, wait, errDetail)
	}

	s, wait, errDetail = DecideInstance(s, InstanceSignals{NetworkConfigAcked: true})
	if wait != "" || errDetail != "" || s != model.InstanceStateReady {
		t.Fatalf("got state=%v wait=%q err=%q, want Ready", s, wait, errDetail)
	}
}

func TestDecideInstanceHealthOverrideBlocksConfiguring(t *testing.T) {
	s, wait, errDetail := DecideInstance(model.InstanceStateConfiguring, InstanceSignals{
		NetworkConfigAcked:     true,
		HealthBlocksAllocation: true,
	})
	if s != model.InstanceStateConfiguring || wait == "" || errDetail != "" {
		t.Fatalf("got state=%v wait=%q err=%q, want held at Configuring with a wait reason", s, wait, errDetail)
	}
}

func TestDecideInstanceHardFailureIsTerminalFromAnyState(t *testing.T) {
	for _, current := range []model.InstanceState{
		model.InstanceStateBootingWithDiscoveryImage,
		model.InstanceStateBootingTenantOS,
		model.InstanceStateConfiguring,
		model.InstanceStateReady,
	} {
		s, _, errDetail := DecideInstance(current, InstanceSignals{HardFailure: true, HardFailureDetail: "host BMC reported an unrecoverable fault"})
		if s != model.InstanceStateFailed || errDetail == "" {
			t.Fatalf("from %v: got state=%v err=%q, want Failed with a detail", current, s, errDetail)
		}
	}
}

func TestDecideInstanceTerminalStatesAreFixedPoints(t *testing.T) {
	for _, current := range []model.InstanceState{model.InstanceStateReady, model.InstanceStateFailed} {
		s, wait, errDetail := DecideInstance(current, InstanceSignals{})
		if s != current || wait != "" || errDetail != "" {
			t.Fatalf("terminal state %v must be a fixed point, got state=%v wait=%q err=%q", current, s, wait, errDetail)
		}
	}
}
