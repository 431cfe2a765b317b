// PXE script selection: §4.1 "Write PXE script". Selection is a pure
// function of (machine type, current state, architecture); callers write
// the returned script content the same way regardless of which interface
// requested it.
package reconciler

import "github.com/carbide-fleet/carbide/pkg/model"

// PXEScript is the closed set of boot targets Carbide can hand a PXE client.
type PXEScript string

const (
	// PXEScriptExit proceeds straight to the locally installed OS — no
	// network boot payload is written.
	PXEScriptExit PXEScript = "exit"
	// PXEScriptScout boots the discovery/measured-boot image used during
	// HostInit and while an Assigned instance re-images.
	PXEScriptScout PXEScript = "scout.efi"
	// PXEScriptCarbide boots the DPU agent image used while a DPU installs
	// or reinstalls its BFB.
	PXEScriptCarbide PXEScript = "carbide.efi"
)

// Architecture is the closed set of boot architectures Carbide serves PXE
// payloads for.
type Architecture string

const (
	ArchitectureX86_64  Architecture = "x86_64"
	ArchitectureAArch64 Architecture = "aarch64"
)

// MachinePXEState narrows a ManagedHostState down to exactly the substate
// relevant to one machine (Host or a single DPU), since the top-level state
// carries per-DPU maps a single PXE decision must not see the whole of.
type MachinePXEState struct {
	Kind             model.ManagedHostStateKind
	MachineState     model.MachineState     // valid when Kind == HostInit
	InstanceState    model.InstanceState    // valid when Kind == Assigned
	DpuInitState     model.DpuInitState     // valid when Kind == DPUInit, for this DPU
	ReprovisionState model.ReprovisionState // valid when Kind == DPUReprovision, for this DPU
}

// SelectPXEScript implements §4.1's PXE selection contract. arch is
// currently unused by the decision itself (every script Carbide serves has
// an arch-specific build resolved at the transport layer, not here), but is
// threaded through because the design names it as part of the function's
// input and a future script kind may need it.
func SelectPXEScript(machineType model.MachineType, state MachinePXEState, _ Architecture) PXEScript {
	if machineType == model.MachineTypeDpu {
		return selectDpuPXE(state)
	}
	return selectHostPXE(state)
}

func selectHostPXE(state MachinePXEState) PXEScript {
	switch state.Kind {
	case model.ManagedHostStateHostInit:
		switch state.MachineState {
		case model.MachineStateBMCDiscovery, model.MachineStateHostDHCP, model.MachineStatePXEScout,
			model.MachineStateInitialMeasuredBoot:
			return PXEScriptScout
		default:
			return PXEScriptExit
		}
	case model.ManagedHostStateAssigned:
		if state.InstanceState == model.InstanceStateBootingWithDiscoveryImage {
			return PXEScriptScout
		}
		return PXEScriptExit
	default:
		// DPUReprovision, Ready, Failed, Quarantined: the host side of any
		// of these always comes back up into its already-installed OS.
		return PXEScriptExit
	}
}

func selectDpuPXE(state MachinePXEState) PXEScript {
	switch state.Kind {
	case model.ManagedHostStateDPUInit:
		if state.DpuInitState == model.DpuInitStateReady {
			return PXEScriptExit
		}
		return PXEScriptCarbide
	case model.ManagedHostStateDPUReprovision:
		switch state.ReprovisionState {
		case model.ReprovisionStateInstallDpuOs, model.ReprovisionStateWaitingForNetworkInstall,
			model.ReprovisionStateCreateDpuDevice, model.ReprovisionStateDpuDeviceCreated,
			model.ReprovisionStateCreateDpuNode, model.ReprovisionStateWaitForDpuDeviceToReady,
			model.ReprovisionStateDpuDeviceReady, model.ReprovisionStateUpdateNodeEffectAnnotation,
			model.ReprovisionStateWaitingForOsInstallToComplete:
			return PXEScriptCarbide
		default:
			return PXEScriptExit
		}
	default:
		return PXEScriptExit
	}
}
