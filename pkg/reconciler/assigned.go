// Assigned substate machine: §4.1 "InstanceState covers the handoff of an
// allocated host into its tenant instance."
package reconciler

import "github.com/carbide-fleet/carbide/pkg/model"

// InstanceSignals are the observations one iteration collects for a host
// currently Assigned to a tenant instance.
type InstanceSignals struct {
	DiscoveryImageBooted   bool
	TenantOSBooted         bool
	NetworkConfigAcked     bool
	HealthBlocksAllocation bool
	HardFailure            bool
	HardFailureDetail      string
}

// DecideInstance computes the next InstanceState. A non-empty errDetail
// means the host must move to InstanceStateFailed and the caller should
// surface it via an Outcome Error at the top level.
func DecideInstance(current model.InstanceState, sig InstanceSignals) (next model.InstanceState, wait string, errDetail string) {
	if sig.HardFailure {
		return model.InstanceStateFailed, "", sig.HardFailureDetail
	}

	switch current {
	case model.InstanceStateBootingWithDiscoveryImage:
		if !sig.DiscoveryImageBooted {
			return current, "waiting for the discovery image to boot", ""
		}
		return model.InstanceStateBootingTenantOS, "", ""

	case model.InstanceStateBootingTenantOS:
		if !sig.TenantOSBooted {
			return current, "waiting for the tenant OS to boot", ""
		}
		return model.InstanceStateConfiguring, "", ""

	case model.InstanceStateConfiguring:
		if sig.HealthBlocksAllocation {
			return current, "a health override is blocking allocation", ""
		}
		if !sig.NetworkConfigAcked {
			return current, "waiting for the instance to acknowledge its network configuration", ""
		}
		return model.InstanceStateReady, "", ""

	case model.InstanceStateReady, model.InstanceStateFailed:
		return current, "", ""

	default:
		return current, "", "unrecognized InstanceState"
	}
}
