// DPUReprovision substate machine: §4.1's two reprovision pipelines (legacy,
// and DPF-delegated) plus the all_dpu_states_in_sync barrier and the
// reprovision-request trigger preconditions.
package reconciler

import (
	"github.com/carbide-fleet/carbide/pkg/carbideerr"
	"github.com/carbide-fleet/carbide/pkg/model"
)

// ReprovisionSignals are the per-DPU observations one iteration collects
// while under DPUReprovision.
type ReprovisionSignals struct {
	BFBInstalled           bool
	NetworkInstallObserved bool
	HostPoweredOff         bool
	FirmwareVerified       bool
	NetworkConfigAcked     bool
	HostBmcResetAcked      bool
	HostBackOnline         bool

	// DPF variant
	DpuDeviceReady                    bool
	OsInstallComplete                 bool
	NetworkConfigAndAnnotationRemoved bool
	AllSiblingsDeleted                bool
}

// DecideReprovisionLegacy advances the non-DPF reprovision pipeline.
// allDpusAtOrPastPowerDown gates the PowerDown->VerifyFirmwareVersions step
// per the all_dpu_states_in_sync barrier (model.AllDpuStatesInSync).
func DecideReprovisionLegacy(current model.ReprovisionState, allDpusAtOrPastPowerDown bool, sig ReprovisionSignals) (next model.ReprovisionState, wait string) {
	switch current {
	case model.ReprovisionStateNotUnderReprovision:
		return model.ReprovisionStateInstallDpuOs, ""

	case model.ReprovisionStateInstallDpuOs:
		if !sig.BFBInstalled {
			return current, "BFB install in progress"
		}
		return model.ReprovisionStateWaitingForNetworkInstall, ""

	case model.ReprovisionStateWaitingForNetworkInstall:
		if !sig.NetworkInstallObserved {
			return current, "waiting for the DPU to be discovered over the network install interface"
		}
		return model.ReprovisionStatePoweringOffHost, ""

	case model.ReprovisionStatePoweringOffHost:
		if !sig.HostPoweredOff {
			return current, "waiting for the host power-off to be issued"
		}
		return model.ReprovisionStatePowerDown, ""

	case model.ReprovisionStatePowerDown:
		if !sig.HostPoweredOff {
			return current, "waiting for the host to report powered off"
		}
		if !allDpusAtOrPastPowerDown {
			return current, "waiting for sibling DPUs to reach PowerDown"
		}
		return model.ReprovisionStateVerifyFirmwareVersions, ""

	case model.ReprovisionStateVerifyFirmwareVersions:
		if !sig.FirmwareVerified {
			return current, "firmware does not yet match the expected inventory"
		}
		return model.ReprovisionStateWaitingForNetworkConfig, ""

	case model.ReprovisionStateWaitingForNetworkConfig:
		if !sig.NetworkConfigAcked {
			return current, "waiting for the DPU to acknowledge its network configuration"
		}
		return model.ReprovisionStateRebootHostBmc, ""

	case model.ReprovisionStateRebootHostBmc:
		if !sig.HostBmcResetAcked {
			return current, "waiting for the host BMC reset to be issued"
		}
		return model.ReprovisionStateRebootHost, ""

	case model.ReprovisionStateRebootHost:
		if !sig.HostBackOnline {
			return current, "waiting for the host to come back online"
		}
		return model.ReprovisionStateTerminated, ""

	case model.ReprovisionStateTerminated:
		return current, ""

	default:
		return current, "not a legacy reprovision state"
	}
}

// DecideReprovisionDPF advances the DPF-delegated reprovision pipeline,
// including the reverse preamble (UpdateDpuStatusToError -> DeleteDpu ->
// WaitingForAllDpusUnderReprovisioningToBeDeleted) used when reprovisioning
// a DPU device that already exists.
func DecideReprovisionDPF(current model.ReprovisionState, sig ReprovisionSignals) (next model.ReprovisionState, wait string) {
	switch current {
	case model.ReprovisionStateNotUnderReprovision:
		return model.ReprovisionStateCreateDpuDevice, ""

	case model.ReprovisionStateCreateDpuDevice:
		return model.ReprovisionStateDpuDeviceCreated, ""

	case model.ReprovisionStateDpuDeviceCreated:
		return model.ReprovisionStateCreateDpuNode, ""

	case model.ReprovisionStateCreateDpuNode:
		return model.ReprovisionStateWaitForDpuDeviceToReady, ""

	case model.ReprovisionStateWaitForDpuDeviceToReady:
		if !sig.DpuDeviceReady {
			return current, "waiting for the DPU device to become ready"
		}
		return model.ReprovisionStateDpuDeviceReady, ""

	case model.ReprovisionStateDpuDeviceReady:
		return model.ReprovisionStateUpdateNodeEffectAnnotation, ""

	case model.ReprovisionStateUpdateNodeEffectAnnotation:
		return model.ReprovisionStateWaitingForOsInstallToComplete, ""

	case model.ReprovisionStateWaitingForOsInstallToComplete:
		if !sig.OsInstallComplete {
			return current, "waiting for the OS install to complete"
		}
		return model.ReprovisionStateWaitForNetworkConfigAndRemoveAnnotation, ""

	case model.ReprovisionStateWaitForNetworkConfigAndRemoveAnnotation:
		if !sig.NetworkConfigAndAnnotationRemoved {
			return current, "waiting for network config acknowledgment and annotation removal"
		}
		return model.ReprovisionStateTerminated, ""

	case model.ReprovisionStateTerminated:
		return current, ""

	case model.ReprovisionStateUpdateDpuStatusToError:
		return model.ReprovisionStateDeleteDpu, ""

	case model.ReprovisionStateDeleteDpu:
		return model.ReprovisionStateWaitingForAllDpusUnderReprovisioningToBeDeleted, ""

	case model.ReprovisionStateWaitingForAllDpusUnderReprovisioningToBeDeleted:
		if !sig.AllSiblingsDeleted {
			return current, "waiting for sibling DPUs under reprovisioning to be deleted"
		}
		return model.ReprovisionStateCreateDpuDevice, ""

	default:
		return current, "not a DPF reprovision state"
	}
}

// TriggerDPFReprovisionOfExistingDevice starts the reverse preamble used
// when reprovisioning re-targets a DPU device that is already installed.
func TriggerDPFReprovisionOfExistingDevice() model.ReprovisionState {
	return model.ReprovisionStateUpdateDpuStatusToError
}

// ValidateReprovisionRequest applies the Set/Clear/Restart preconditions
// §3 describes: Set is rejected while a prior host-update health override
// is still present, Clear is rejected once the workflow has started.
func ValidateReprovisionRequest(mode model.ReprovisionRequestMode, current model.ReprovisionRequest, reprovisionState model.ReprovisionState, updateFirmware bool, updateMessage string, hasHostUpdateOverride bool) (model.ReprovisionRequest, error) {
	switch mode {
	case model.ReprovisionRequestSet:
		if hasHostUpdateOverride {
			return current, carbideerr.FailedPrecondition("SetReprovision", "a host-update health override from a prior reprovision is still present")
		}
		return model.ReprovisionRequest{Requested: true, UpdateFirmware: updateFirmware, UpdateMessage: updateMessage}, nil

	case model.ReprovisionRequestClear:
		if current.HasStarted() {
			return current, carbideerr.FailedPrecondition("ClearReprovision", "cannot clear a reprovision request after the workflow has started")
		}
		return model.ReprovisionRequest{}, nil

	case model.ReprovisionRequestRestart:
		if !reprovisionState.AtOrPastInstallDpuOs() {
			return current, carbideerr.InvalidArgument("RestartReprovision", "restart is only valid once reprovisioning has entered InstallDpuOs or later")
		}
		return model.ReprovisionRequest{Requested: true, UpdateFirmware: updateFirmware, UpdateMessage: updateMessage}, nil

	default:
		return current, carbideerr.InvalidArgument("SetReprovision", "unknown reprovision request mode")
	}
}

// ValidateSetMaintenance rejects putting a host into maintenance while a
// reprovision workflow is in progress against it.
func ValidateSetMaintenance(reprovisionInProgress bool) error {
	if reprovisionInProgress {
		return carbideerr.FailedPrecondition("SetMaintenance", "cannot set maintenance while a reprovision is in progress")
	}
	return nil
}
