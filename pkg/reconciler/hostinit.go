// HostInit substate machine: §4.1 "MachineState during HostInit covers BMC
// discovery, host DHCP, PXE to discovery image (Scout), initial
// measured-boot, and firmware verification."
package reconciler

import (
	"github.com/carbide-fleet/carbide/pkg/ids"
	"github.com/carbide-fleet/carbide/pkg/model"
)

// HostInitSignals are the observations one reconciliation iteration
// collects before deciding the next HostInit substate. All fields are
// point-in-time facts gathered by I/O the caller already performed; Decide
// itself never touches the network.
type HostInitSignals struct {
	BMCReachable            bool
	HostPoweredOn           bool
	ScoutImageBooted        bool
	AttestationVerdict      model.AttestationVerdict
	FirmwareMatchesExpected bool
	SecureBootRequired      bool
	HasPairedDpus           bool
}

// DecideHostInit computes the next ManagedHostState for a host currently in
// HostInit given sig. A Wait result leaves the Machine's substate
// unchanged; an Error result is fatal to the host. It surfaces two: an
// unrecognized HostInit machine state (InvalidState), and measured-boot
// failure under a secure-boot-required policy, since no further HostInit
// progress is possible without it.
func DecideHostInit(current model.MachineState, sig HostInitSignals) Outcome {
	switch current {
	case model.MachineStateBMCDiscovery:
		if !sig.BMCReachable {
			return Wait("BMC not yet reachable")
		}
		return Transition(hostInitState(model.MachineStateHostDHCP))

	case model.MachineStateHostDHCP:
		if !sig.HostPoweredOn {
			return Wait("waiting for the host to power on and acquire a DHCP lease")
		}
		return Transition(hostInitState(model.MachineStatePXEScout))

	case model.MachineStatePXEScout:
		if !sig.ScoutImageBooted {
			return Wait("waiting for the discovery image to boot")
		}
		return Transition(hostInitState(model.MachineStateInitialMeasuredBoot))

	case model.MachineStateInitialMeasuredBoot:
		switch sig.AttestationVerdict {
		case model.AttestationMeasured, model.AttestationPendingBundle:
			return Transition(hostInitState(model.MachineStateFirmwareVerification))
		case model.AttestationMeasuringFailed:
			if sig.SecureBootRequired {
				return Error("AttestationFailed", "initial measured-boot report failed verification and secure boot is required")
			}
			return Transition(hostInitState(model.MachineStateFirmwareVerification))
		default:
			return Wait("waiting for the initial measured-boot report")
		}

	case model.MachineStateFirmwareVerification:
		if !sig.FirmwareMatchesExpected {
			return Wait("firmware does not yet match the expected inventory")
		}
		return Transition(hostInitState(model.MachineStateDiscovered))

	case model.MachineStateDiscovered:
		if sig.HasPairedDpus {
			return Transition(model.ManagedHostState{
				Kind:          model.ManagedHostStateDPUInit,
				DpuInitStates: map[ids.MachineId]model.DpuInitState{},
			})
		}
		return Transition(model.ManagedHostState{Kind: model.ManagedHostStateReady})

	default:
		return Error("InvalidState", "unrecognized HostInit machine state")
	}
}

func hostInitState(ms model.MachineState) model.ManagedHostState {
	return model.ManagedHostState{Kind: model.ManagedHostStateHostInit, MachineState: ms}
}
