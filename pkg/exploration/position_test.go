package exploration

import (
	"testing"

	"github.com/carbide-fleet/carbide/pkg/redfish"
)

func TestMergeChassisPositionFirstWins(t *testing.T) {
	chassis := []redfish.ChassisInfo{
		{PhysicalSlot: "1", ComputeTrayIndex: "", TopologyID: "topo-a", RevisionID: ""},
		{PhysicalSlot: "2", ComputeTrayIndex: "3", TopologyID: "topo-b", RevisionID: "rev-1"},
	}
	slot, tray, topo, rev := MergeChassisPosition(chassis)
	if slot != "1" {
		t.Errorf("physicalSlot = %q, want first entry's value", slot)
	}
	if tray != "3" {
		t.Errorf("computeTrayIndex = %q, want second entry's value since first was empty", tray)
	}
	if topo != "topo-a" {
		t.Errorf("topologyID = %q, want first entry's value", topo)
	}
	if rev != "rev-1" {
		t.Errorf("revisionID = %q, want second entry's value since first was empty", rev)
	}
}

func TestMergeChassisPositionEmpty(t *testing.T) {
	slot, tray, topo, rev := MergeChassisPosition(nil)
	if slot != "" || tray != "" || topo != "" || rev != "" {
		t.Errorf("expected all-empty result for no chassis, got %q %q %q %q", slot, tray, topo, rev)
	}
}
