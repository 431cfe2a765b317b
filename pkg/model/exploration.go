package model

import (
	"net"
	"time"

	"github.com/carbide-fleet/carbide/pkg/ids"
)

// EndpointType is the closed classification of what kind of device a
// candidate BMC endpoint turned out to be.
type EndpointType string

const (
	EndpointTypeUnknown    EndpointType = "Unknown"
	EndpointTypeHostBMC    EndpointType = "HostBMC"
	EndpointTypeDpuBMC     EndpointType = "DpuBMC"
	EndpointTypePowerShelf EndpointType = "PowerShelf"
	EndpointTypeSwitch     EndpointType = "Switch"
)

// PreingestionStateKind is the closed set of preingestion pipeline states.
type PreingestionStateKind string

const (
	PreingestionInitial                     PreingestionStateKind = "Initial"
	PreingestionRecheckVersions              PreingestionStateKind = "RecheckVersions"
	PreingestionInitialReset                 PreingestionStateKind = "InitialReset"
	PreingestionTimeSyncReset                PreingestionStateKind = "TimeSyncReset"
	PreingestionUpgradeFirmwareWait          PreingestionStateKind = "UpgradeFirmwareWait"
	PreingestionResetForNewFirmware          PreingestionStateKind = "ResetForNewFirmware"
	PreingestionNewFirmwareReportedWait      PreingestionStateKind = "NewFirmwareReportedWait"
	PreingestionRecheckVersionsAfterFailure  PreingestionStateKind = "RecheckVersionsAfterFailure"
	PreingestionFailed                       PreingestionStateKind = "Failed"
	PreingestionComplete                     PreingestionStateKind = "Complete"
)

// ResetSubstate is the shared Start/BMCWasReset/WaitHostBoot substate used
// by both InitialReset and TimeSyncReset.
type ResetSubstate string

const (
	ResetSubstateStart        ResetSubstate = "Start"
	ResetSubstateBMCWasReset  ResetSubstate = "BMCWasReset"
	ResetSubstateWaitHostBoot ResetSubstate = "WaitHostBoot"
)

// PreingestionState is the tagged-variant preingestion pipeline state for
// one endpoint.
type PreingestionState struct {
	Kind PreingestionStateKind

	ResetSubstate ResetSubstate // InitialReset, TimeSyncReset

	// UpgradeFirmwareWait / ResetForNewFirmware / NewFirmwareReportedWait
	TaskID              string
	Component            FirmwareComponentType
	FinalVersion         string
	PowerDrainsNeeded    int
	DelayUntil           *time.Time
	LastPowerDrainAt     *time.Time
	PreviousResetAt      *time.Time

	// RecheckVersionsAfterFailure / Failed
	FailureReason string
}

// CredentialStatus tracks the lockout-guard bookkeeping for one endpoint.
type CredentialStatus string

const (
	CredentialStatusOK                     CredentialStatus = "OK"
	CredentialStatusUnauthorized           CredentialStatus = "Unauthorized"
	CredentialStatusAvoidLockout           CredentialStatus = "AvoidLockout"
	CredentialStatusIntermittentUnauthorized CredentialStatus = "IntermittentUnauthorized"
)

// PairingBlockerReason is the closed enumeration of reasons a Host/DPU
// candidate pair failed to form, each its own metric tag.
type PairingBlockerReason string

const (
	PairingBlockerManualPowerCycleRequired PairingBlockerReason = "ManualPowerCycleRequired"
	PairingBlockerVikingCpldVersionIssue   PairingBlockerReason = "VikingCpldVersionIssue"
	PairingBlockerDpuNicModeUnknown        PairingBlockerReason = "DpuNicModeUnknown"
	PairingBlockerDpuPf0MacMissing         PairingBlockerReason = "DpuPf0MacMissing"
	PairingBlockerHostSystemReportMissing  PairingBlockerReason = "HostSystemReportMissing"
	PairingBlockerBootInterfaceMacMismatch PairingBlockerReason = "BootInterfaceMacMismatch"
	PairingBlockerNoDpuReportedByHost      PairingBlockerReason = "NoDpuReportedByHost"
)

// NicMode is a DPU BMC's current NIC/DPU operation mode, as reported
// through its BIOS/OEM attributes. Grounded in the original site-explorer's
// nic_mode() accessor (Option<NicMode> over an external NicMode::Nic /
// NicMode::Dpu enum) — Carbide has no equivalent OEM type to deserialize
// against, so it classifies the attribute's raw string value instead. The
// zero value means the mode could not be determined.
type NicMode string

const (
	NicModeUnknown NicMode = ""
	NicModeNIC     NicMode = "Nic"
	NicModeDPU     NicMode = "Dpu"
)

// EndpointExplorationReport is the per-IP record produced and refreshed by
// the exploration engine.
type EndpointExplorationReport struct {
	IP   net.IP
	Type EndpointType

	LastError        string
	LastErrorAt       *time.Time
	CredentialStatus CredentialStatus
	UnauthorizedFlapCount int

	Vendor    string
	Firmware  FirmwareInventory
	Discovery DiscoveryInfo
	NicMode   NicMode // DPU BMC endpoints only; zero value on Host BMC reports

	// Raw enumeration results kept for pairing/position derivation; opaque
	// beyond what pairing and firmware parsing read from them.
	SystemIDs     []string
	ChassisPartNumbers []string
	BootInterfaceMAC  string
	PF0MAC            string

	DerivedMachineID *ids.MachineId
	Preingestion     PreingestionState

	ReportVersion int64
	UpdatedAt     time.Time
}

// ExploredDpu is one DPU candidate paired to a host within an
// ExploredManagedHost.
type ExploredDpu struct {
	BmcIP  net.IP
	HostPF string
}

// ExploredManagedHost is a candidate Host/DPU pairing produced by the
// exploration engine's pairing algorithm, prior to ingestion as Machines.
type ExploredManagedHost struct {
	HostBmcIP net.IP
	Dpus      []ExploredDpu
	BlockedBy []PairingBlockerReason
}

// IsPaired reports whether this candidate has no unresolved pairing
// blockers and so is eligible to advance to ingestion.
func (e ExploredManagedHost) IsPaired() bool {
	return len(e.BlockedBy) == 0 && len(e.Dpus) > 0
}
