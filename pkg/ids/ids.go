// Package ids defines the opaque, globally unique identifiers used across
// Carbide's data model. Each kind of entity gets its own typed identifier so
// that a MachineId can never be passed where a BundleId is expected.
package ids

import "github.com/google/uuid"

// MachineKind distinguishes the three flavors of Machine identity.
type MachineKind string

const (
	MachineKindHost          MachineKind = "Host"
	MachineKindDpu           MachineKind = "Dpu"
	MachineKindPredictedHost MachineKind = "PredictedHost"
)

// MachineId is the typed identifier for a Machine, carrying its kind.
type MachineId struct {
	Kind MachineKind
	UUID uuid.UUID
}

// NewMachineId allocates a fresh MachineId of the given kind.
func NewMachineId(kind MachineKind) MachineId {
	return MachineId{Kind: kind, UUID: uuid.New()}
}

func (m MachineId) String() string {
	return string(m.Kind) + ":" + m.UUID.String()
}

// IsZero reports whether this is the unset MachineId.
func (m MachineId) IsZero() bool {
	return m.UUID == uuid.Nil
}

// ProfileId identifies a MeasurementSystemProfile.
type ProfileId uuid.UUID

func NewProfileId() ProfileId { return ProfileId(uuid.New()) }
func (p ProfileId) String() string { return uuid.UUID(p).String() }
func (p ProfileId) IsZero() bool { return uuid.UUID(p) == uuid.Nil }

// BundleId identifies a MeasurementBundle.
type BundleId uuid.UUID

func NewBundleId() BundleId { return BundleId(uuid.New()) }
func (b BundleId) String() string { return uuid.UUID(b).String() }
func (b BundleId) IsZero() bool { return uuid.UUID(b) == uuid.Nil }

// ReportId identifies a MeasurementReport.
type ReportId uuid.UUID

func NewReportId() ReportId { return ReportId(uuid.New()) }
func (r ReportId) String() string { return uuid.UUID(r).String() }

// JournalId identifies a MeasurementJournal row.
type JournalId uuid.UUID

func NewJournalId() JournalId { return JournalId(uuid.New()) }
func (j JournalId) String() string { return uuid.UUID(j).String() }

// ApprovalId identifies a MeasurementApproval.
type ApprovalId uuid.UUID

func NewApprovalId() ApprovalId { return ApprovalId(uuid.New()) }
func (a ApprovalId) String() string { return uuid.UUID(a).String() }

// InstanceId identifies an InstanceDesire.
type InstanceId uuid.UUID

func NewInstanceId() InstanceId { return InstanceId(uuid.New()) }
func (i InstanceId) String() string { return uuid.UUID(i).String() }
