// DPUInit substate machine: §4.1 "DpuInitState covers BFB install, network
// install wait, host pairing, and the legacy/DPF mode split, ending in
// Ready."
package reconciler

import (
	"github.com/carbide-fleet/carbide/pkg/ids"
	"github.com/carbide-fleet/carbide/pkg/model"
)

// DpuInitSignals are the per-DPU observations one iteration collects.
type DpuInitSignals struct {
	BFBInstalled           bool
	NetworkInstallObserved bool
	PairedWithHost         bool
	DPFEnabled             bool
}

// DecideDpuInit computes one DPU's next DpuInitState. wait is non-empty when
// the DPU should hold at current.
func DecideDpuInit(current model.DpuInitState, sig DpuInitSignals) (next model.DpuInitState, wait string) {
	switch current {
	case model.DpuInitStateInstallingBFB:
		if !sig.BFBInstalled {
			return current, "BFB install in progress"
		}
		return model.DpuInitStateWaitingForNetworkInstall, ""

	case model.DpuInitStateWaitingForNetworkInstall:
		if !sig.NetworkInstallObserved {
			return current, "waiting for the DPU to be discovered over the network install interface"
		}
		return model.DpuInitStatePairing, ""

	case model.DpuInitStatePairing:
		if !sig.PairedWithHost {
			return current, "waiting for host pairing"
		}
		if sig.DPFEnabled {
			return model.DpuInitStateDPFMode, ""
		}
		return model.DpuInitStateLegacyMode, ""

	case model.DpuInitStateLegacyMode, model.DpuInitStateDPFMode:
		return model.DpuInitStateReady, ""

	case model.DpuInitStateReady:
		return current, ""

	default:
		return current, "unrecognized DpuInitState"
	}
}

// DpuInitProgress is the per-DPU result of one AdvanceDPUInit call.
type DpuInitProgress struct {
	Next model.DpuInitState
	Wait string
}

// AdvanceDPUInit steps every DPU's substate independently; the top-level
// DPUInit->Ready transition out of the loop is decided separately by
// AllDpuInitReady once every DPU reports Ready.
func AdvanceDPUInit(states map[ids.MachineId]model.DpuInitState, signals map[ids.MachineId]DpuInitSignals) map[ids.MachineId]DpuInitProgress {
	out := make(map[ids.MachineId]DpuInitProgress, len(states))
	for key, s := range states {
		next, wait := DecideDpuInit(s, signals[key])
		out[key] = DpuInitProgress{Next: next, Wait: wait}
	}
	return out
}

// AllDpuInitReady reports whether every DPU attached to a host has reached
// Ready, the precondition for the host to leave the DPUInit top-level state.
func AllDpuInitReady(states map[ids.MachineId]model.DpuInitState) bool {
	if len(states) == 0 {
		return false
	}
	for _, s := range states {
		if s != model.DpuInitStateReady {
			return false
		}
	}
	return true
}
