// Position merging: design notes open question #2. Each position field
// (physical slot, compute-tray index, topology id, revision id) is filled
// independently from the first Chassis entry in Redfish enumeration order
// that supplies a non-empty value for that field; a later entry never
// overwrites a field one earlier entry already set, even if the later entry
// also has a value for it. Ported from the original site-explorer's
// EndpointExplorationReport::parse_position_info(), whose Option::or()
// chain over every chassis entry is this same "first non-empty value wins"
// rule.
package exploration

import "github.com/carbide-fleet/carbide/pkg/redfish"

// MergeChassisPosition implements the "first wins" rule across chassis in
// the order the Redfish client enumerated them. The order of chassis []
// is load-bearing: it must be the order GetChassisInfo returned, which in
// turn reflects Redfish's own collection-member enumeration order.
func MergeChassisPosition(chassis []redfish.ChassisInfo) (physicalSlot, computeTrayIndex, topologyID, revisionID string) {
	for _, c := range chassis {
		if physicalSlot == "" && c.PhysicalSlot != "" {
			physicalSlot = c.PhysicalSlot
		}
		if computeTrayIndex == "" && c.ComputeTrayIndex != "" {
			computeTrayIndex = c.ComputeTrayIndex
		}
		if topologyID == "" && c.TopologyID != "" {
			topologyID = c.TopologyID
		}
		if revisionID == "" && c.RevisionID != "" {
			revisionID = c.RevisionID
		}
	}
	return physicalSlot, computeTrayIndex, topologyID, revisionID
}
