// Host-DPU pairing: §4.2 "Host-DPU pairing". Given the currently explored
// endpoints, pair each Host BMC with the DPU BMCs whose PF0 MAC matches the
// host's primary-boot-interface MAC, recording a closed-enumeration blocker
// reason when a pairing can't be formed so operators see a metric tag
// instead of a free-form string.
package exploration

import (
	"sort"
	"strings"

	"github.com/carbide-fleet/carbide/pkg/model"
)

// PairHosts runs the pairing algorithm over every currently explored Host
// and DPU endpoint report, producing one ExploredManagedHost per Host
// report. Pairing is idempotent by construction: given the same input slice
// (regardless of order — pairHost sorts its own DPU candidates), the same
// output tuples are produced (§8 invariant 8).
func PairHosts(reports []model.EndpointExplorationReport) []model.ExploredManagedHost {
	var hosts []model.EndpointExplorationReport
	var dpus []model.EndpointExplorationReport
	for _, r := range reports {
		switch r.Type {
		case model.EndpointTypeHostBMC:
			hosts = append(hosts, r)
		case model.EndpointTypeDpuBMC:
			dpus = append(dpus, r)
		}
	}
	// Deterministic host ordering keeps output stable for tests and callers
	// that diff successive pairing passes.
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].IP.String() < hosts[j].IP.String() })

	out := make([]model.ExploredManagedHost, 0, len(hosts))
	for _, host := range hosts {
		out = append(out, pairHost(host, dpus))
	}
	return out
}

func pairHost(host model.EndpointExplorationReport, dpus []model.EndpointExplorationReport) model.ExploredManagedHost {
	result := model.ExploredManagedHost{HostBmcIP: host.IP}

	if len(host.SystemIDs) == 0 {
		result.BlockedBy = append(result.BlockedBy, model.PairingBlockerHostSystemReportMissing)
		return result
	}
	if host.BootInterfaceMAC == "" {
		result.BlockedBy = append(result.BlockedBy, model.PairingBlockerBootInterfaceMacMismatch)
		return result
	}

	var matched []model.ExploredDpu
	var blockers []model.PairingBlockerReason
	var candidates []model.EndpointExplorationReport
	for _, dpu := range dpus {
		candidates = append(candidates, dpu)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].IP.String() < candidates[j].IP.String() })

	for _, dpu := range candidates {
		if dpu.PF0MAC == "" {
			blockers = append(blockers, model.PairingBlockerDpuPf0MacMissing)
			continue
		}
		if dpu.PF0MAC != host.BootInterfaceMAC {
			continue
		}
		if CPLDVersionBelowMinimum(dpu.Firmware) {
			blockers = append(blockers, model.PairingBlockerVikingCpldVersionIssue)
			continue
		}
		if dpu.NicMode == model.NicModeUnknown {
			blockers = append(blockers, model.PairingBlockerDpuNicModeUnknown)
			continue
		}
		if dpu.NicMode == model.NicModeNIC && !isDellVendor(host.Vendor) {
			blockers = append(blockers, model.PairingBlockerManualPowerCycleRequired)
			continue
		}
		matched = append(matched, model.ExploredDpu{BmcIP: dpu.IP, HostPF: dpu.PF0MAC})
	}

	if len(matched) == 0 {
		if len(blockers) == 0 {
			blockers = append(blockers, model.PairingBlockerNoDpuReportedByHost)
		}
		result.BlockedBy = dedupeBlockers(blockers)
		return result
	}

	result.Dpus = matched
	return result
}

// isDellVendor reports whether a host's reported Manufacturer string
// identifies it as Dell, matching the substring convention
// redfish.VendorDetector uses for the same manufacturer field. Dell hosts
// complete a DPU NIC-mode switch without operator intervention; every other
// vendor needs a manual power cycle (PairingBlockerManualPowerCycleRequired).
func isDellVendor(manufacturer string) bool {
	return strings.Contains(strings.ToLower(strings.TrimSpace(manufacturer)), "dell")
}

func dedupeBlockers(in []model.PairingBlockerReason) []model.PairingBlockerReason {
	seen := make(map[model.PairingBlockerReason]struct{}, len(in))
	var out []model.PairingBlockerReason
	for _, b := range in {
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		out = append(out, b)
	}
	return out
}
