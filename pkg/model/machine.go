// Package model defines Carbide's persistence-independent data model: the
// Machine entity and its tagged-variant state machines, the exploration and
// attestation entities, and the health/instance signals the reconciler reads
// on each iteration. Go has no sum types, so each variant is represented as
// a closed set of string Kind constants plus a struct holding only the
// fields relevant to that Kind — mirroring the teacher's status-substruct
// convention (api/v1beta1/physicalhost_types.go) rather than an interface
// hierarchy.
package model

import (
	"time"

	"github.com/carbide-fleet/carbide/pkg/ids"
)

// MachineType is the tagged variant over what kind of physical entity a
// Machine represents.
type MachineType string

const (
	MachineTypeHost          MachineType = "Host"
	MachineTypeDpu           MachineType = "Dpu"
	MachineTypePredictedHost MachineType = "PredictedHost"
	MachineTypePowerShelf    MachineType = "PowerShelf"
	MachineTypeSwitch        MachineType = "Switch"
)

// ManagedHostStateKind is the top-level ManagedHostState variant tag.
type ManagedHostStateKind string

const (
	ManagedHostStateHostInit        ManagedHostStateKind = "HostInit"
	ManagedHostStateDPUInit         ManagedHostStateKind = "DPUInit"
	ManagedHostStateReady           ManagedHostStateKind = "Ready"
	ManagedHostStateAssigned        ManagedHostStateKind = "Assigned"
	ManagedHostStateDPUReprovision  ManagedHostStateKind = "DPUReprovision"
	ManagedHostStateFailed          ManagedHostStateKind = "Failed"
	ManagedHostStateQuarantined     ManagedHostStateKind = "Quarantined"
)

// MachineState is the HostInit-substate: BMC discovery through firmware
// verification, ending in Discovered.
type MachineState string

const (
	MachineStateBMCDiscovery       MachineState = "BMCDiscovery"
	MachineStateHostDHCP           MachineState = "HostDHCP"
	MachineStatePXEScout           MachineState = "PXEScout"
	MachineStateInitialMeasuredBoot MachineState = "InitialMeasuredBoot"
	MachineStateFirmwareVerification MachineState = "FirmwareVerification"
	MachineStateDiscovered         MachineState = "Discovered"
)

// DpuInitState is the DPUInit-substate for a single DPU.
type DpuInitState string

const (
	DpuInitStateInstallingBFB        DpuInitState = "InstallingBFB"
	DpuInitStateWaitingForNetworkInstall DpuInitState = "WaitingForNetworkInstall"
	DpuInitStatePairing              DpuInitState = "Pairing"
	DpuInitStateLegacyMode           DpuInitState = "LegacyMode"
	DpuInitStateDPFMode              DpuInitState = "DPFMode"
	DpuInitStateReady                DpuInitState = "Ready"
)

// InstanceState is the Assigned-substate.
type InstanceState string

const (
	InstanceStateBootingWithDiscoveryImage InstanceState = "BootingWithDiscoveryImage"
	InstanceStateConfiguring               InstanceState = "Configuring"
	InstanceStateReady                     InstanceState = "Ready"
	InstanceStateFailed                    InstanceState = "Failed"
	InstanceStateBootingTenantOS           InstanceState = "BootingTenantOS"
)

// ReprovisionState is the DPUReprovision-substate for a single DPU, covering
// both the legacy pipeline and the DPF-delegated pipeline.
type ReprovisionState string

const (
	ReprovisionStateNotUnderReprovision       ReprovisionState = "NotUnderReprovision"
	ReprovisionStateInstallDpuOs              ReprovisionState = "InstallDpuOs"
	ReprovisionStateWaitingForNetworkInstall  ReprovisionState = "WaitingForNetworkInstall"
	ReprovisionStatePoweringOffHost           ReprovisionState = "PoweringOffHost"
	ReprovisionStatePowerDown                 ReprovisionState = "PowerDown"
	ReprovisionStateVerifyFirmwareVersions    ReprovisionState = "VerifyFirmwareVersions"
	ReprovisionStateWaitingForNetworkConfig   ReprovisionState = "WaitingForNetworkConfig"
	ReprovisionStateRebootHostBmc             ReprovisionState = "RebootHostBmc"
	ReprovisionStateRebootHost                ReprovisionState = "RebootHost"
	ReprovisionStateTerminated                ReprovisionState = "Terminated"

	// DPF variant states.
	ReprovisionStateCreateDpuDevice                     ReprovisionState = "CreateDpuDevice"
	ReprovisionStateDpuDeviceCreated                     ReprovisionState = "DpuDeviceCreated"
	ReprovisionStateCreateDpuNode                        ReprovisionState = "CreateDpuNode"
	ReprovisionStateWaitForDpuDeviceToReady               ReprovisionState = "WaitForDpuDeviceToReady"
	ReprovisionStateDpuDeviceReady                        ReprovisionState = "DpuDeviceReady"
	ReprovisionStateUpdateNodeEffectAnnotation            ReprovisionState = "UpdateNodeEffectAnnotation"
	ReprovisionStateWaitingForOsInstallToComplete          ReprovisionState = "WaitingForOsInstallToComplete"
	ReprovisionStateWaitForNetworkConfigAndRemoveAnnotation ReprovisionState = "WaitForNetworkConfigAndRemoveAnnotation"
	ReprovisionStateUpdateDpuStatusToError                 ReprovisionState = "UpdateDpuStatusToError"
	ReprovisionStateDeleteDpu                              ReprovisionState = "DeleteDpu"
	ReprovisionStateWaitingForAllDpusUnderReprovisioningToBeDeleted ReprovisionState = "WaitingForAllDpusUnderReprovisioningToBeDeleted"
)

// IsTerminal reports whether s is the state that allows a DPU to leave the
// DPUReprovision top-level variant, per the reprovision pipeline's final
// transition into HostInit::Discovered or Assigned::Ready.
func (s ReprovisionState) IsTerminal() bool {
	return s == ReprovisionStateTerminated
}

// reprovisionPhaseOrder records how far along the legacy pipeline each state is, used by
// the all_dpu_states_in_sync barrier. Earlier phases are lower numbers;
// states before PowerDown are "not yet off", PowerDown and later are "off or
// further".
var reprovisionPhaseOrder = map[ReprovisionState]int{
	ReprovisionStateNotUnderReprovision:      0,
	ReprovisionStateInstallDpuOs:             1,
	ReprovisionStateWaitingForNetworkInstall: 2,
	ReprovisionStatePoweringOffHost:          3,
	ReprovisionStatePowerDown:                4,
	ReprovisionStateVerifyFirmwareVersions:   5,
	ReprovisionStateWaitingForNetworkConfig:  6,
	ReprovisionStateRebootHostBmc:            7,
	ReprovisionStateRebootHost:               8,
	ReprovisionStateTerminated:               9,
}

// Phase returns the ordinal position of s in the legacy reprovision
// pipeline; DPF-variant states return -1 (compared separately).
func (s ReprovisionState) Phase() int {
	if p, ok := reprovisionPhaseOrder[s]; ok {
		return p
	}
	return -1
}

// AtOrPastPowerDown reports whether s is PowerDown or any state reached
// after it in the legacy pipeline.
func (s ReprovisionState) AtOrPastPowerDown() bool {
	return s.Phase() >= reprovisionPhaseOrder[ReprovisionStatePowerDown]
}

// AtOrPastInstallDpuOs reports whether s is InstallDpuOs or any state
// reached after it, the gate for accepting a Restart trigger (§6
// "Reprovision trigger preconditions"). DPF-variant states (Phase() == -1)
// are always past this gate since DPF reprovisioning has its own start.
func (s ReprovisionState) AtOrPastInstallDpuOs() bool {
	if s.Phase() == -1 {
		return true
	}
	return s.Phase() >= reprovisionPhaseOrder[ReprovisionStateInstallDpuOs]
}

// ReprovisionRequestMode is the admin-facing trigger-reprovisioning mode.
type ReprovisionRequestMode string

const (
	ReprovisionRequestSet     ReprovisionRequestMode = "Set"
	ReprovisionRequestClear   ReprovisionRequestMode = "Clear"
	ReprovisionRequestRestart ReprovisionRequestMode = "Restart"
)

// ReprovisionRequest is the DPU's reprovision_requested annotation.
type ReprovisionRequest struct {
	Requested      bool
	UpdateFirmware bool
	UpdateMessage  string
	StartedAt      *time.Time // set once the workflow has begun; gates Clear rejection
}

// HasStarted reports whether the reprovision workflow has progressed far
// enough that Clear must be rejected with FailedPrecondition.
func (r ReprovisionRequest) HasStarted() bool {
	return r.StartedAt != nil
}

// ManagedHostState is the top-level tagged variant for a Machine's lifecycle
// state. Only the fields relevant to Kind are meaningful; this mirrors the
// design's "each branch carries only the data relevant to that branch"
// guidance without nullable-field soup by convention (callers must not read
// fields outside the active Kind).
type ManagedHostState struct {
	Kind ManagedHostStateKind

	// HostInit
	MachineState MachineState

	// DPUInit
	DpuInitStates map[ids.MachineId]DpuInitState

	// Assigned
	InstanceState InstanceState

	// DPUReprovision
	DpuReprovisionStates map[ids.MachineId]ReprovisionState

	// Failed
	FailureDetails string
}

// AllDpuStatesInSync implements the "all DPUs attached to a host must be at
// PowerDown or further before any advances past it" barrier: it reports
// whether every DPU's reprovision state is at or past PowerDown.
func AllDpuStatesInSync(states map[ids.MachineId]ReprovisionState) bool {
	for _, s := range states {
		if !s.AtOrPastPowerDown() {
			return false
		}
	}
	return true
}

// AttestationVerdict is the attestation state visible to the reconciler.
type AttestationVerdict string

const (
	AttestationDiscovered     AttestationVerdict = "Discovered"
	AttestationMeasured       AttestationVerdict = "Measured"
	AttestationPendingBundle  AttestationVerdict = "PendingBundle"
	AttestationMeasuringFailed AttestationVerdict = "MeasuringFailed"
)

// RedfishConnection identifies how to reach a Machine's BMC.
type RedfishConnection struct {
	Address            string
	Username           string
	CredentialSecretRef string
	InsecureSkipVerify bool
}

// DiscoveryInfo is the identity/inventory data gathered during exploration,
// carried forward onto the ingested Machine.
type DiscoveryInfo struct {
	DMIProductSerial string
	DMIBoardSerial   string
	DMIChassisSerial string
	DMIProductName   string
	Vendor           string
	PCIeDevices      []string
	InfiniBandHCAs   []string
	GPUs             []string
	PhysicalSlot     string
	ComputeTrayIndex string
	TopologyID       string
	RevisionID       string
}

// FirmwareInventory maps a closed component-type enumeration to its
// observed version string.
type FirmwareInventory map[FirmwareComponentType]string

// FirmwareComponentType is the closed set of firmware components Carbide
// tracks and can upgrade.
type FirmwareComponentType string

const (
	FirmwareComponentBIOS    FirmwareComponentType = "BIOS"
	FirmwareComponentBMC     FirmwareComponentType = "BMC"
	FirmwareComponentCPLD    FirmwareComponentType = "CPLD"
	FirmwareComponentNIC     FirmwareComponentType = "NIC"
	FirmwareComponentDpuATF  FirmwareComponentType = "DpuATF"
	FirmwareComponentDpuUEFI FirmwareComponentType = "DpuUEFI"
)

// MaintenanceRef identifies the reason/owner of a maintenance annotation.
type MaintenanceRef struct {
	On        bool
	Reference string
}

// QuarantineMode is the closed set of quarantine reasons an admin may set.
type QuarantineMode string

const (
	QuarantineModeManual     QuarantineMode = "Manual"
	QuarantineModeAutomatic  QuarantineMode = "Automatic"
)

// QuarantineState is a Host's independent quarantine annotation.
type QuarantineState struct {
	Quarantined bool
	Mode        QuarantineMode
	Reason      string
}

// Machine is the root entity: a Host, Dpu, or PredictedHost, with its
// current lifecycle state and everything the reconciler needs to decide the
// next one.
type Machine struct {
	ID    ids.MachineId
	Type  MachineType
	State ManagedHostState

	StateVersion int64
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Connection    RedfishConnection
	Firmware      FirmwareInventory
	Discovery     DiscoveryInfo

	// Host <-> DPU relation. A Dpu's AssociatedHostMachineID is set; a
	// Host's AssociatedDpuMachineIDs is materialized by query, not stored
	// denormalized (see design notes on cyclic references).
	AssociatedHostMachineID  *ids.MachineId
	AssociatedDpuMachineIDs  []ids.MachineId
	PrimaryDpuMachineID      *ids.MachineId

	ReprovisionRequest ReprovisionRequest
	Maintenance        MaintenanceRef
	Quarantine         QuarantineState

	LastDiscoveryAt      time.Time
	LastRebootRequestedAt *time.Time
	RebootAttemptCount    int

	AttestationVerdict AttestationVerdict
}

// Snapshot is a per-iteration view of a Host plus its DPU peers, instance
// desire, health and attestation verdict. The reconciler does not build
// one; it passes the host, its DPUs, desire and health to its decide
// functions as separate arguments.
type Snapshot struct {
	Host           Machine
	Dpus           []Machine
	InstanceDesire *InstanceDesire
	Health         HealthReport
	Verdict        AttestationVerdict
}
